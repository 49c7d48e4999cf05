package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/user"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"influencegen/internal/model"
	"influencegen/internal/params"
)

const rotateTokenBytes = 32

// qualify accepts either a full key or a bare name in the active namespace.
func (a *app) qualify(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return params.Key(a.cfg.Namespace, name)
}

func (a *app) show(p params.Param) params.Param {
	if a.reveal {
		return p
	}
	return params.Mask(p)
}

func (a *app) getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a parameter value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := a.qualify(args[0])
			v, ok, err := a.b.Params.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not set", key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.show(params.Param{Key: key, Value: v}).Value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.reveal, "reveal", false, "print secret values in clear")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := a.qualify(args[0])
			err := a.b.Params.Set(cmd.Context(), key, args[1])
			a.audit(cmd, key, "set", err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete KEY",
		Aliases: []string{"rm"},
		Short:   "Delete a parameter",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := a.qualify(args[0])
			err := a.b.Params.Delete(cmd.Context(), key)
			a.audit(cmd, key, "delete", err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", key)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List parameters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.b.Params.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED")
			for _, p := range items {
				p = a.show(p)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, p.Value, p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&a.reveal, "reveal", false, "print secret values in clear")
	return cmd
}

// rotateCmd replaces a shared secret with a fresh random token and prints it
// once so it can be copied into the orchestration service.
func (a *app) rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate [NAME]",
		Short: "Generate a new random shared secret (default: " + params.CallbackAuthToken + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := params.CallbackAuthToken
			if len(args) == 1 {
				name = args[0]
			}
			key := a.qualify(name)
			buf := make([]byte, rotateTokenBytes)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			token := hex.EncodeToString(buf)
			err := a.b.Params.Set(cmd.Context(), key, token)
			a.audit(cmd, key, "rotate", err)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func (a *app) audit(cmd *cobra.Command, key, action string, err error) {
	actor := "paramctl"
	if u, uerr := user.Current(); uerr == nil {
		actor = "paramctl:" + u.Username
	}
	e := model.AuditEntry{
		Actor:       actor,
		EventType:   "system.param",
		TargetModel: "system_param",
		TargetID:    key,
		Action:      action,
		Outcome:     model.OutcomeSuccess,
	}
	if err != nil {
		e.Outcome = model.OutcomeFailure
		e.Details = map[string]any{"error": err.Error()}
	}
	if _, aerr := a.b.Store.AppendAudit(cmd.Context(), e); aerr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: audit entry not recorded:", aerr)
	}
}
