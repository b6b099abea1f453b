/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mycloud-app/mycloud/internal/files"
	"github.com/mycloud-app/mycloud/internal/workspace"
	"github.com/mycloud-app/mycloud/types"
)

var fileFlags struct {
	user    int
	comment string
	output  string
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage stored files",
}

var filesListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List your files, or another user's with --user (admins)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ws *workspace.Workspace) error {
			userID := ws.Session.CurrentUser().ID
			if fileFlags.user > 0 {
				userID = fileFlags.user
			}
			list, err := ws.ViewUserFiles(cmd.Context(), userID)
			if err != nil {
				return describe(err, "Failed to load files")
			}
			printFiles(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ws *workspace.Workspace) error {
			created, err := ws.UploadPaths(cmd.Context(), args, fileFlags.comment)
			printFiles(cmd.OutOrStdout(), created)
			var partial *files.PartialUploadError
			if errors.As(err, &partial) {
				for _, msg := range partial.Errors {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
				}
				return errors.New("some files were not uploaded")
			}
			if err != nil {
				return describe(err, "Upload failed")
			}
			return nil
		})
	},
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ws *workspace.Workspace) error {
			path, err := ws.Files.DownloadFile(cmd.Context(), fileID, fileFlags.output)
			if err != nil {
				return describe(err, "Download failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		})
	},
}

var filesRenameCmd = &cobra.Command{
	Use:   "rename <file-id> <new-name>",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ws *workspace.Workspace) error {
			f, err := ws.Files.RenameFile(cmd.Context(), fileID, args[1])
			if err != nil {
				return describe(err, "Rename failed")
			}
			printFiles(cmd.OutOrStdout(), []types.File{f})
			return nil
		})
	},
}

var filesCommentCmd = &cobra.Command{
	Use:   "comment <file-id> <comment>",
	Short: "Set a file's comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ws *workspace.Workspace) error {
			f, err := ws.Files.UpdateComment(cmd.Context(), fileID, args[1])
			if err != nil {
				return describe(err, "Comment update failed")
			}
			printFiles(cmd.OutOrStdout(), []types.File{f})
			return nil
		})
	},
}

var filesRemoveCmd = &cobra.Command{
	Use:     "rm <file-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ws *workspace.Workspace) error {
			owner := ws.Session.CurrentUser().ID
			if fileFlags.user > 0 {
				owner = fileFlags.user
			}
			if err := ws.DeleteFile(cmd.Context(), owner, fileID); err != nil {
				return describe(err, "Delete failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted file %d\n", fileID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesDownloadCmd, filesRenameCmd, filesCommentCmd, filesRemoveCmd)

	filesListCmd.Flags().IntVar(&fileFlags.user, "user", 0, "owner id")
	filesRemoveCmd.Flags().IntVar(&fileFlags.user, "user", 0, "owner id")
	filesUploadCmd.Flags().StringVarP(&fileFlags.comment, "comment", "c", "", "comment for every uploaded file")
	filesDownloadCmd.Flags().StringVarP(&fileFlags.output, "output", "o", "", "local file name")
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func printFiles(w io.Writer, list []types.File) {
	if len(list) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED\tLAST DOWNLOAD\tCOMMENT")
	for _, f := range list {
		last := f.LastDownloaded
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.FileName, f.FileSize, f.UploadDate, last, f.Comment)
	}
	_ = tw.Flush()
}
