package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zyahav/cloud-harness/internal/config"
	"github.com/zyahav/cloud-harness/internal/docdrift"
	"github.com/zyahav/cloud-harness/internal/home"
	"github.com/zyahav/cloud-harness/internal/lease"
	"github.com/zyahav/cloud-harness/internal/lifecycle"
	"github.com/zyahav/cloud-harness/internal/style"
)

var (
	finishRepoPath    string
	finishHandoffPath string
	finishDocStrict   bool
	finishForce       bool
)

var finishCmd = &cobra.Command{
	Use:   "finish <runName>",
	Short: "Verify a completed run and push its branch",
	Long: `Finish a run whose handoff is fully passing.

Preconditions: the project tree and the run's worktree are clean, the
handoff parses, and every task has passes=true. The doc-drift checker
runs against the project's README and agent guide; unresolved items are
triaged interactively, and with --doc-strict any item left unresolved
aborts the finish. The run branch is then pushed and the run marked
finished.

Push rejections abort without touching the registry: a non-fast-forward
rejection exits 7, an authentication failure exits 1.`,
	Args: cobra.ExactArgs(1),
	RunE: runFinish,
}

func init() {
	finishCmd.Flags().StringVar(&finishRepoPath, "repo-path", "", "repository the run belongs to (checked against the first registered run with this name)")
	finishCmd.Flags().StringVar(&finishHandoffPath, "handoff-path", "", "handoff to validate (defaults to the worktree's)")
	finishCmd.Flags().BoolVar(&finishDocStrict, "doc-strict", false, "fail on unresolved documentation drift")
	finishCmd.Flags().BoolVar(&finishForce, "force", false, "take over an inconsistent controller lease")
	rootCmd.AddCommand(finishCmd)
}

func runFinish(cmd *cobra.Command, args []string) error {
	d := newDeps()
	return d.withLease(finishForce, func(l *lease.Lease) error {
		cfg, err := config.Load(home.ConfigPath(d.root))
		if err != nil {
			return err
		}
		strict := finishDocStrict || cfg.Doc.Strict

		if err := checkRunRepo(d, args[0], finishRepoPath); err != nil {
			return err
		}

		st, err := d.store.Load()
		if err != nil {
			return err
		}
		run := st.RunByName("", args[0])
		var repoPath string
		if run != nil {
			if p := st.ProjectByID(run.ProjectID); p != nil {
				repoPath = p.RepoPath
			}
		}

		hint, err := d.engine.Finish(lifecycle.FinishOptions{
			RunName:     args[0],
			HandoffPath: finishHandoffPath,
			Remote:      cfg.Push.Remote,
			DocCheck: func() error {
				if repoPath == "" {
					return nil
				}
				return docDriftGate(repoPath, strict)
			},
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Run %s finished\n", style.Success.Render("✓"), style.Bold.Render(args[0]))
		fmt.Printf("  %s\n", style.Dim.Render(hint))
		return nil
	})
}

// docDriftGate runs the doc-drift checker against the project and triages
// unresolved items interactively. In strict mode anything still unresolved
// aborts.
func docDriftGate(repoPath string, strict bool) error {
	store, err := docdrift.OpenStore(repoPath)
	if err != nil {
		return err
	}
	flags, err := docdrift.ExtractFlags(repoPath)
	if err != nil {
		return err
	}
	checker := &docdrift.Checker{
		Flags: flags,
		DocPaths: []string{
			filepath.Join(repoPath, "README.md"),
			filepath.Join(repoPath, "AGENTS.md"),
		},
		GuidePath: filepath.Join(repoPath, "AGENTS.md"),
		RepoRoot:  repoPath,
		Store:     store,
	}

	unresolved, err := checker.Unresolved(time.Now())
	if err != nil {
		return err
	}
	if len(unresolved) == 0 {
		return nil
	}

	if isInteractive() {
		unresolved, err = triageDrift(checker, store, unresolved)
		if err != nil {
			return err
		}
	}

	if len(unresolved) > 0 {
		for _, item := range unresolved {
			fmt.Printf("%s %s\n", style.Warning.Render("⚠"), item.Detail)
		}
		if strict {
			return &docdrift.DriftError{Items: unresolved}
		}
	}
	return nil
}

// triageDrift walks the user through each unresolved item and returns what
// remains unresolved afterwards.
func triageDrift(checker *docdrift.Checker, store *docdrift.Store, items []docdrift.Item) ([]docdrift.Item, error) {
	reader := bufio.NewReader(os.Stdin)
	for _, item := range items {
		fmt.Printf("\n%s %s\n", style.Warning.Render("Undocumented:"), item.Detail)
		fmt.Print("  [u]pdate docs  [i]nternal  [d]efer 7d  [c]ontinue: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "u":
			fmt.Print("  short description for the docs: ")
			desc, _ := reader.ReadString('\n')
			if err := store.Put(item.ID, docdrift.DecisionDocumented, strings.TrimSpace(desc)); err != nil {
				return nil, err
			}
		case "i":
			if err := store.Put(item.ID, docdrift.DecisionInternal, ""); err != nil {
				return nil, err
			}
		case "d":
			if err := store.Put(item.ID, docdrift.DecisionDeferred, ""); err != nil {
				return nil, err
			}
		default:
			// Continue: no persistence, item stays unresolved this pass.
		}
	}
	return checker.Unresolved(time.Now())
}
