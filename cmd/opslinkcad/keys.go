package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generación de secretos",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Imprime secretos JWT nuevos y una master key para FLE, en formato .env",
		RunE: func(cmd *cobra.Command, _ []string) error {
			access, err := randomBytes(32)
			if err != nil {
				return err
			}
			refresh, err := randomBytes(32)
			if err != nil {
				return err
			}
			master, err := randomBytes(fieldcipher.MasterKeySize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "JWT_ACCESS_SECRET=%s\n", hex.EncodeToString(access))
			fmt.Fprintf(out, "JWT_REFRESH_SECRET=%s\n", hex.EncodeToString(refresh))
			fmt.Fprintf(out, "FLE_MASTERKEY_B64=%s\n", base64.StdEncoding.EncodeToString(master))
			return nil
		},
	})
	return cmd
}
