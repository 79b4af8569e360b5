package cli

import (
	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/spf13/cobra"
)

func (rt *runtime) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your profile as the API sees it",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			var me *todoapi.User
			err = rt.withAuthRetry(a, func() error {
				var err error
				me, err = a.API().GetMe(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}

			keyValueTable(rt.out, [][2]string{
				{"id", string(me.ID)},
				{"username", me.Username},
				{"email", me.Email},
				{"name", me.Name},
			})
			return nil
		},
	}
}

func (rt *runtime) registerCmd() *cobra.Command {
	var req todoapi.RegisterUserRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the API",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if errs := req.Validate(); errs != nil {
				fields := toStringFields(errs)
				printFieldErrors(rt.errOut, fields)
				return usageError{fieldError{fields}}
			}

			a, err := rt.application(cmd.Context())
			if err != nil {
				return err
			}

			resp, err := a.API().Register(cmd.Context(), req)
			if err != nil {
				if fields := todoapi.FieldErrors(err); fields != nil {
					printFieldErrors(rt.errOut, fields)
					return fieldError{fields}
				}
				return err
			}

			ok(rt.out, "registered "+resp.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password")
	cmd.Flags().StringVar(&req.PasswordConfirm, "password-confirm", "", "Password again")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	return cmd
}
