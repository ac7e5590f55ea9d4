package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/repliqueue/core/replicate"
)

const ReplicatCtlVersion = "0.0.1"

func main() {
	usage := `Replication control.

Usage:
    replicatectl replicate --local=<local> --remote=<remote> [--pull] [--user=<user> --pass=<pass>]
    replicatectl resolve --doc=<doc_id>
    replicatectl -h | --help

Options:
    -h --help              Show this screen.
    --version               Show version.
    --local=<local>         Local datastore handle.
    --remote=<remote>       Remote endpoint URL.
    --pull                  Pull instead of push.
    --user=<user>           Session username.
    --pass=<pass>           Session password.
    --doc=<doc_id>          Document id to resolve for the built-in demo dataset.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ReplicatCtlVersion)
	if err != nil {
		panic(err)
	}

	if replicateCmd, _ := opts.Bool("replicate"); replicateCmd {
		runReplicate(opts)
	} else if resolveCmd, _ := opts.Bool("resolve"); resolveCmd {
		runResolve(opts)
	}
}

func runReplicate(opts docopt.Opts) {
	local, _ := opts.String("--local")
	remote, _ := opts.String("--remote")
	pull, _ := opts.Bool("--pull")
	user, _ := opts.String("--user")
	pass, _ := opts.String("--pass")

	direction := replicate.Push
	if pull {
		direction = replicate.Pull
	}

	config, err := replicate.NewReplicatorConfiguration(replicate.ReplicatorOptions{
		Direction: direction,
		Local:     local,
		Remote:    remote,
		Username:  user,
		Password:  pass,
	})
	if err != nil {
		fmt.Printf("invalid configuration: %s\n", err)
		return
	}
	_ = config

	factory := replicate.NewFactory(replicate.NewDemoTransport(), nil)
	controller, _, err := factory.NewReplicator(replicate.ReplicatorOptions{
		Direction: direction,
		Local:     local,
		Remote:    remote,
		Username:  user,
		Password:  pass,
	})
	if err != nil {
		fmt.Printf("could not create replicator: %s\n", err)
		return
	}

	done := make(chan struct{})
	controller.SetDelegate(&replicate.ControllerDelegate{
		DidChangeState: func(c *replicate.Controller) {
			fmt.Printf("state -> %s\n", c.State())
		},
		DidChangeProgress: func(c *replicate.Controller) {
			fmt.Printf("progress %d/%d\n", c.ChangesProcessed(), c.ChangesTotal())
		},
		DidComplete: func(c *replicate.Controller) {
			fmt.Println("complete")
			close(done)
		},
		DidError: func(c *replicate.Controller, err error) {
			fmt.Printf("error: %s\n", err)
			close(done)
		},
	})

	if err := controller.Start(); err != nil {
		fmt.Printf("failed to start: %s\n", err)
		return
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Println("timed out waiting for replication")
	}
}

func runResolve(opts docopt.Opts) {
	docIdStr, _ := opts.String("--doc")
	docId := replicate.DocId(docIdStr)

	store := replicate.NewMemoryRevisionStore()
	seedDemoConflict(store, docId)

	engine := replicate.NewConflictEngine(store)
	conflicted := engine.ConflictedDocumentIds()
	fmt.Printf("conflicted documents before resolve: %v\n", conflicted)

	resolver := replicate.ResolverFunc(func(doc replicate.DocId, conflicts []replicate.RevisionView) *replicate.RevisionView {
		var best *replicate.RevisionView
		bestGen := -1
		for i := range conflicts {
			gen, err := conflicts[i].RevId.Generation()
			if err == nil && gen > bestGen {
				bestGen = gen
				best = &conflicts[i]
			}
		}
		return best
	})

	if err := engine.Resolve(docId, resolver); err != nil {
		fmt.Printf("resolve failed: %s\n", err)
		return
	}

	winner, err := store.Get(docId)
	if err != nil {
		fmt.Printf("get failed: %s\n", err)
		return
	}
	fmt.Printf("winner: %s body=%v\n", winner.RevId, winner.Body)
}

// seedDemoConflict builds the same tree shape as scenario S1/S2 in this
// design's test suite: 1-a -> 2-a -> 3-a, with a sibling branch 1-a -> 2-b.
func seedDemoConflict(store *replicate.MemoryRevisionStore, doc replicate.DocId) {
	rev1, _, _ := store.PutRevision(doc, "", false, map[string]any{"foo1": "bar1"}, false, nil)
	rev2a, _, _ := store.PutRevision(doc, rev1.RevId, false, map[string]any{"foo2.a": "bar2.a"}, false, nil)
	_, _, _ = store.PutRevision(doc, rev2a.RevId, false, map[string]any{"foo3.a": "bar3.a"}, false, nil)
	_, _, _ = store.PutRevision(doc, rev1.RevId, false, map[string]any{"foo2.b": "bar2.b"}, true, nil)
}
