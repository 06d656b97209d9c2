package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bloodlink.org/internal/blood"
)

// readPassword takes --password, then BMS_PASSWORD, then one line of stdin.
func readPassword(flag string, in io.Reader, prompt io.Writer) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("BMS_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			pw, err := readPassword(password, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sess, err := a.session.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", sess.Identity.Username, sess.Identity.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (default: BMS_PASSWORD or prompt)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			a.session.Restore(cmd.Context())
			a.session.Logout(cmd.Context())
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the persisted identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			id, err := a.requireRole(cmd.Context(), "")
			if err != nil {
				return err
			}
			group := string(id.BloodGroup)
			if group == "" {
				group = "-"
			}
			fmt.Fprintf(a.out, "%s\t%s\t%s\n", id.Username, id.Role, group)
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var (
		reg   blood.Registration
		group string
	)
	cmd := &cobra.Command{
		Use:       "register <donor|civilian>",
		Short:     "Create a donor or civilian account and log in",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"donor", "civilian"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			reg.Kind = blood.RoleCivilian
			if args[0] == "donor" {
				reg.Kind = blood.RoleDonor
			}
			if group != "" {
				g, err := blood.ParseBloodGroup(group)
				if err != nil {
					return err
				}
				reg.BloodGroup = g
			}
			pw, err := readPassword(reg.Password, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg.Password = pw
			sess, err := a.session.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered and logged in as %s (%s)\n", sess.Identity.Username, sess.Identity.Role)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.Username, "username", "", "username")
	f.StringVar(&reg.Email, "email", "", "e-mail address")
	f.StringVar(&reg.Password, "password", "", "password (default: BMS_PASSWORD or prompt)")
	f.StringVar(&reg.FirstName, "first-name", "", "first name")
	f.StringVar(&reg.LastName, "last-name", "", "last name")
	f.StringVar(&group, "blood-group", "", "blood group, required for donors")
	return cmd
}
