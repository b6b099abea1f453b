/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/internal/workspace"
	"github.com/mycloud-app/mycloud/types"
)

var authFlags struct {
	password string
	fullname string
	email    string
}

var registerCmd = &cobra.Command{
	Use:   "register <login>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd)
		if err != nil {
			return err
		}
		return withWorkspace(cmd, func(ws *workspace.Workspace) error {
			user, err := ws.Register(cmd.Context(), types.Registration{
				Login:    args[0],
				Fullname: authFlags.fullname,
				Email:    authFlags.email,
				Password: password,
			})
			if err != nil {
				return describe(err, "Registration failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s (id %d)\n", user.Login, user.ID)
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <login>",
	Short: "Log in and save the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFrom(cmd)
		if err != nil {
			return err
		}
		return withWorkspace(cmd, func(ws *workspace.Workspace) error {
			user, err := ws.Login(cmd.Context(), args[0], password)
			if err != nil {
				return describe(err, "Login failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Login)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget saved credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd, func(ws *workspace.Workspace) error {
			if _, err := ws.Restore(cmd.Context()); err != nil && !errors.Is(err, workspace.ErrNotLoggedIn) {
				return err
			}
			if err := ws.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ws *workspace.Workspace) error {
			printUser(cmd.OutOrStdout(), *ws.Session.CurrentUser())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)

	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVarP(&authFlags.password, "password", "p", "", "password, read from stdin when empty")
	}
	registerCmd.Flags().StringVar(&authFlags.fullname, "fullname", "", "display name")
	registerCmd.Flags().StringVar(&authFlags.email, "email", "", "email address")
	_ = registerCmd.MarkFlagRequired("fullname")
	_ = registerCmd.MarkFlagRequired("email")
}

// passwordFrom returns the --password flag or the first line of stdin.
func passwordFrom(cmd *cobra.Command) (string, error) {
	if authFlags.password != "" {
		return authFlags.password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

// describe turns an error into the message shown to the user, listing field
// errors one per line.
func describe(err error, fallback string) error {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		var b strings.Builder
		b.WriteString(fallback)
		for _, field := range []string{validate.FieldLogin, validate.FieldFullname, validate.FieldEmail, validate.FieldPassword} {
			if msg := verr.Message(field); msg != "" {
				fmt.Fprintf(&b, "\n  %s: %s", field, msg)
			}
		}
		return errors.New(b.String())
	}
	if msg := apiclient.Message(err, ""); msg != "" {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", fallback, err)
}

func printUser(w io.Writer, u types.User) {
	fmt.Fprintf(w, "id:       %d\n", u.ID)
	fmt.Fprintf(w, "login:    %s\n", u.Login)
	fmt.Fprintf(w, "fullname: %s\n", u.Fullname)
	fmt.Fprintf(w, "email:    %s\n", u.Email)
	fmt.Fprintf(w, "admin:    %t\n", u.IsAdmin)
	if u.Avatar != "" {
		fmt.Fprintf(w, "avatar:   %s\n", u.Avatar)
	}
}
