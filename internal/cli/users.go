// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

// usersCmd inspects the file-backed credential store.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect registered users",
}

var usersDataDir string

// usersListCmd lists users and their credentials from the file store.
var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users and their credentials",
	Run: func(cmd *cobra.Command, args []string) {
		backend, err := file.New(usersDataDir)
		if err != nil {
			handleError(err)
		}
		defer backend.Close()

		keys, err := backend.List("users/")
		if err != nil {
			handleError(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tCREDENTIALS\tCREDENTIAL ID\tSIGN COUNT\tCREATED")

		for _, key := range keys {
			data, err := backend.Get(key)
			if err != nil {
				handleError(err)
			}

			var user passkey.User
			if err := json.Unmarshal(data, &user); err != nil {
				handleError(fmt.Errorf("corrupt user record %q: %w", key, err))
			}

			if len(user.Credentials) == 0 {
				fmt.Fprintf(w, "%s\t0\t-\t-\t-\n", user.ID)
				continue
			}
			for _, cred := range user.Credentials {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
					user.ID,
					len(user.Credentials),
					base64.RawURLEncoding.EncodeToString(cred.ID),
					cred.SignCount,
					cred.CreatedAt.Format("2006-01-02 15:04:05"))
			}
		}

		if err := w.Flush(); err != nil {
			handleError(err)
		}
	},
}

func init() {
	usersCmd.PersistentFlags().StringVar(&usersDataDir, "data-dir", "/var/lib/passkey",
		"root directory of the file-backed credential store")
	usersCmd.AddCommand(usersListCmd)
}
