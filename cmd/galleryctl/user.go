package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"facegallery/internal/auth"
	"facegallery/internal/gallery"
)

func newUserCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var name, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account, typically the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := gallery.NewRepository(e.db.Client)
			svc := gallery.NewService(gallery.Deps{
				Users:  repo,
				Images: repo,
				Hasher: auth.NewHasher(e.cfg.BcryptCost),
				Log:    e.log,
			}, gallery.Options{})
			u, err := svc.Register(e.ctx(cmd), name, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", u.Role, u.Name, u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "account name")
	create.Flags().StringVar(&password, "password", "", "account password")
	create.Flags().StringVar(&role, "role", "admin", "admin or student")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List student accounts and their verification state",
		RunE: func(cmd *cobra.Command, args []string) error {
			students, err := gallery.NewRepository(e.db.Client).ListStudents(e.ctx(cmd))
			if err != nil {
				return err
			}
			return printStudents(cmd.OutOrStdout(), students)
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func printStudents(out io.Writer, students []gallery.User) error {
	if len(students) == 0 {
		_, err := fmt.Fprintln(out, "No students found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERIFIED\tCREATED")
	fmt.Fprintln(w, "--\t----\t--------\t-------")
	for _, u := range students {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", u.ID, u.Name, u.IsVerified, u.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
