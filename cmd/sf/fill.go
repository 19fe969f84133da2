package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"siteforms/internal/app"
	"siteforms/internal/forms"
)

func fillCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "fill <form>",
		Short: "Fill in and submit a form interactively",
		Long:  "Prompts for every field with the same rules the site applies, then stores the submission. With --dry-run nothing is stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var transport forms.Transport = ws.Engine
				if dryRun {
					transport = forms.TransportFunc(func(ctx context.Context, form string, values map[string]string) (forms.Receipt, error) {
						return forms.Receipt{ID: "dry-run"}, nil
					})
				}
				f, m, err := localForm(ws.Config, args[0], transport)
				if err != nil {
					return err
				}
				if err := promptFields(f, m); err != nil {
					return err
				}
				out, err := m.Submit(ctx, f)
				if errors.Is(err, forms.ErrValidation) {
					for name, reason := range f.FieldErrors() {
						fmt.Printf("  %s: %s\n", name, reason)
					}
					if msg := f.Message(); msg.Visible {
						fmt.Println(msg.Text)
					}
					return err
				}
				if err != nil {
					return err
				}
				fmt.Println(out.Message)
				if !out.Success {
					return fmt.Errorf("submission failed")
				}
				if out.ReceiptID != "" {
					fmt.Printf("receipt: %s\n", out.ReceiptID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and run the submit lifecycle without storing")
	return cmd
}

func promptFields(f *forms.Form, m *forms.Manager) error {
	for _, field := range f.Fields() {
		field := field
		message := field.Label
		if message == "" {
			message = field.Name
		}
		if field.Required {
			message += " *"
		}
		validator := survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			candidate := field
			candidate.Value = s
			if res := m.ValidateField(candidate); !res.Valid {
				return errors.New(res.Reason)
			}
			return nil
		})
		var prompt survey.Prompt = &survey.Input{Message: message}
		if field.Type == forms.FieldTextarea {
			prompt = &survey.Multiline{Message: message}
		}
		var answer string
		if err := survey.AskOne(prompt, &answer, validator); err != nil {
			return err
		}
		if err := f.Set(field.Name, answer); err != nil {
			return err
		}
	}
	if _, present := f.Consent(); present {
		var accepted bool
		if err := survey.AskOne(&survey.Confirm{Message: "I have read and accept the privacy notice"}, &accepted); err != nil {
			return err
		}
		return f.SetConsent(accepted)
	}
	return nil
}
