package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/olavph/builds/chroot"
	"github.com/olavph/builds/git"
	"github.com/olavph/builds/repository"
)

func (a *app) factory() *repository.Factory {
	return repository.NewFactory(a.cfg, a.logger)
}

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		kind     string
		name     string
		refSpecs []string
	)

	cmd := &cobra.Command{
		Use:   "checkout <url> <ref>",
		Short: "Clone or reuse a working copy and check out a reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := a.factory()

			if kind == "git" {
				repo, err := f.GetGitRepository(ctx, args[0], a.cfg.RepositoriesPath(), name)
				if err != nil {
					return err
				}
				if err := repo.Checkout(ctx, args[1], refSpecs...); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), repo.Path())
				return nil
			}

			wc, err := f.Get(ctx, kind, args[0], a.cfg.RepositoriesPath(), name)
			if err != nil {
				return err
			}
			if err := wc.Checkout(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), wc.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "git", `repository kind, "git" or "svn"`)
	cmd.Flags().StringVar(&name, "name", "", "working copy directory name (default: derived from the URL)")
	cmd.Flags().StringSliceVar(&refSpecs, "refspec", nil, "refspecs to fetch (git only)")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	var (
		name     string
		buildDir string
	)

	cmd := &cobra.Command{
		Use:   "archive <url> <ref>",
		Short: "Check out a reference and write <name>.tar.gz with all submodules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := a.factory().GetGitRepository(ctx, args[0], a.cfg.RepositoriesPath(), "")
			if err != nil {
				return err
			}
			if err := repo.Checkout(ctx, args[1]); err != nil {
				return err
			}

			if name == "" {
				name = repo.Name()
			}
			if buildDir == "" {
				buildDir = a.cfg.WorkDir
			}

			out, err := repo.Archive(ctx, name, buildDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "archive name and top-level directory (default: repository name)")
	cmd.Flags().StringVar(&buildDir, "build-dir", "", "directory receiving the archive (default: work dir)")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	var (
		message     string
		authorName  string
		authorEmail string
	)

	cmd := &cobra.Command{
		Use:   "push <url> <target-url> <branch>",
		Short: "Commit pending changes in a working copy and push HEAD to a branch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := a.factory().GetGitRepository(ctx, args[0], a.cfg.RepositoriesPath(), "")
			if err != nil {
				return err
			}

			if message != "" {
				if _, err := repo.CommitChanges(ctx, message, git.Signature{Name: authorName, Email: authorEmail}); err != nil {
					return err
				}
			}

			result, err := repo.PushHeadCommits(ctx, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.RemoteRef, result.Flags)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit all changes with this message before pushing")
	cmd.Flags().StringVar(&authorName, "author-name", "builds", "commit author name")
	cmd.Flags().StringVar(&authorEmail, "author-email", "builds@localhost", "commit author email")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	var subcommand string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the release version and milestone from the versions repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := a.factory()

			repo, err := f.SetupVersionsRepository(cmd.Context(), a.cfg, subcommand)
			if err != nil {
				return err
			}

			version, err := f.ReadVersionAndMilestone(repo)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	cmd.Flags().StringVar(&subcommand, "subcommand", "version", "versions repository copy to use")
	return cmd
}

func newChrootCmd(a *app) *cobra.Command {
	var uniqueExt string

	cmd := &cobra.Command{
		Use:   "chroot-init <mock-config>",
		Short: "Scrub and initialize a mock chroot, one process at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if uniqueExt == "" {
				uniqueExt = strconv.FormatInt(time.Now().Unix(), 10)
			}
			initializer := chroot.New(a.cfg, args[0], uniqueExt, a.logger)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				initializer.Output = cmd.ErrOrStderr()
			}
			return initializer.Initialize(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&uniqueExt, "unique-ext", "", "chroot directory suffix (default: current Unix time)")
	return cmd
}
