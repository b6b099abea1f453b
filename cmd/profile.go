/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mycloud-app/mycloud/internal/workspace"
	"github.com/mycloud-app/mycloud/types"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View or change your account",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change login, name, email or password",
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd types.UserUpdate
		flags := cmd.Flags()
		for name, dst := range map[string]**string{
			"login":    &upd.Login,
			"fullname": &upd.Fullname,
			"email":    &upd.Email,
			"password": &upd.Password,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				*dst = &v
			}
		}
		if upd.Empty() {
			return errors.New("nothing to update")
		}
		return withSession(cmd, func(ws *workspace.Workspace) error {
			user, err := ws.Session.UpdateUser(cmd.Context(), upd)
			if err != nil {
				return describe(err, "Failed to update user")
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		})
	},
}

var profileAvatarCmd = &cobra.Command{
	Use:   "avatar <image>",
	Short: "Upload an image and use it as your avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ws *workspace.Workspace) error {
			user, err := ws.SetAvatar(cmd.Context(), args[0])
			if err != nil {
				return describe(err, "Failed to set avatar")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Avatar set to %s\n", user.Avatar)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileUpdateCmd, profileAvatarCmd)

	f := profileUpdateCmd.Flags()
	f.String("login", "", "new login")
	f.String("fullname", "", "new display name")
	f.String("email", "", "new email address")
	f.String("password", "", "new password")
}
