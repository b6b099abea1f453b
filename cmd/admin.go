/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mycloud-app/mycloud/internal/directory"
	"github.com/mycloud-app/mycloud/internal/workspace"
	"github.com/mycloud-app/mycloud/types"
)

var errOwnAdminFlag = errors.New("you cannot change your own admin flag")

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer accounts (admins only)",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List every account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ws *workspace.Workspace) error {
			users, err := ws.Directory.FetchUsers(cmd.Context())
			if err != nil {
				return describe(err, "Failed to load users")
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		})
	},
}

var adminSetCmd = &cobra.Command{
	Use:   "set <user-id> <field>=<value>...",
	Short: "Edit login, fullname, email or is_admin of an account",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ws *workspace.Workspace) error {
			dir := ws.Directory
			if _, err := dir.FetchUsers(cmd.Context()); err != nil {
				return describe(err, "Failed to load users")
			}
			if _, ok := dir.User(userID); !ok {
				return fmt.Errorf("user %d not found", userID)
			}
			if err := stageEdits(dir, userID, args[1:]); err != nil {
				return err
			}

			if err := dir.SaveField(cmd.Context(), userID); err != nil {
				for field, msg := range dir.FieldErrors(userID) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, msg)
				}
				return describe(err, "Failed to update user")
			}
			user, _ := dir.User(userID)
			printUser(cmd.OutOrStdout(), user)
			return nil
		})
	},
}

var adminRemoveUserCmd = &cobra.Command{
	Use:   "rm-user <user-id>",
	Short: "Delete an account and all its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ws *workspace.Workspace) error {
			if !ws.Directory.CanDelete(userID) {
				return errors.New("you cannot delete your own account")
			}
			if err := ws.Directory.DeleteUser(cmd.Context(), userID); err != nil {
				return describe(err, "Failed to delete user")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %d\n", userID)
			return nil
		})
	},
}

var adminFilesCmd = &cobra.Command{
	Use:   "files <user-id>",
	Short: "List an account's files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ws *workspace.Workspace) error {
			list, err := ws.ViewUserFiles(cmd.Context(), userID)
			if err != nil {
				return describe(err, "Failed to load files")
			}
			printFiles(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminUsersCmd, adminSetCmd, adminRemoveUserCmd, adminFilesCmd)
}

func withAdmin(cmd *cobra.Command, fn func(ws *workspace.Workspace) error) error {
	return withSession(cmd, func(ws *workspace.Workspace) error {
		if !ws.Session.CurrentUser().IsAdmin {
			return workspace.ErrNotAdmin
		}
		return fn(ws)
	})
}

// stageEdits stages field=value pairs on userID's row. The directory ignores
// an edit of the acting admin's own flag, so that case is refused here
// instead of reporting an unchanged user as saved.
func stageEdits(dir *directory.Directory, userID int, pairs []string) error {
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", pair)
		}
		if directory.Field(field) == directory.FieldIsAdmin && !dir.CanToggleAdmin(userID) {
			return errOwnAdminFlag
		}
		if err := dir.EditField(userID, directory.Field(field), value); err != nil {
			return err
		}
	}
	return nil
}

func printUsers(w io.Writer, users []types.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOGIN\tFULLNAME\tEMAIL\tADMIN\tFILES")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d\n", u.ID, u.Login, u.Fullname, u.Email, u.IsAdmin, len(u.Files))
	}
	_ = tw.Flush()
}
