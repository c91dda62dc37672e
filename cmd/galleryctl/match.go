package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"facegallery/internal/face"
	"facegallery/internal/gallery"
)

func newMatchCmd(e *env) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "match <student-name>",
		Short: "List the images matching a student's stored face",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = e.cfg.MatchThreshold
			}
			repo := gallery.NewRepository(e.db.Client)
			u, err := repo.UserByName(e.ctx(cmd), args[0])
			if err != nil {
				return fmt.Errorf("user %q: %w", args[0], err)
			}
			if len(u.FaceDescriptor) == 0 {
				return fmt.Errorf("user %q: %w", u.Name, gallery.ErrNotVerified)
			}
			var matcher gallery.Matcher = gallery.ScanMatcher{Images: repo}
			if e.cfg.MatchStrategy == "index" {
				matcher = repo
			}
			images, err := matcher.MatchImages(e.ctx(cmd), u.FaceDescriptor, threshold)
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), u.FaceDescriptor, images)
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", gallery.DefaultThreshold, "match distance (default: MATCH_THRESHOLD)")
	return cmd
}

func printMatches(out io.Writer, query face.Descriptor, images []gallery.Image) error {
	if len(images) == 0 {
		_, err := fmt.Fprintln(out, "No matching images.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDISTANCE\tUPLOADED BY\tUPLOADED")
	fmt.Fprintln(w, "--\t----\t--------\t-----------\t--------")
	for _, img := range images {
		dist, err := face.Distance(query, img.FaceDescriptor)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%s\n", img.ID, img.Name, dist, img.UploaderName, img.UploadDate.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
