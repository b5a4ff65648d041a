package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/authshim/internal/app"
	"github.com/florianilch/authshim/internal/credential"
)

// errNotJWT is reported by inspect for opaque credentials.
var errNotJWT = errors.New("credential is not a JWT")

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "manage the stored credential",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "storage--file",
				Usage: "token file for file storage",
			},
			&cli.StringFlag{
				Name:  "storage--env-key",
				Usage: "environment variable for env storage",
			},
			&cli.StringFlag{
				Name:  "storage--sqlite-path",
				Usage: "database file for sqlite storage",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "print the stored credential",
				Action: withStore(tokenGet),
			},
			{
				Name:      "set",
				Usage:     "store a credential (prompts when no argument is given)",
				ArgsUsage: "[token]",
				Action: withStore(func(ctx context.Context, cmd *cli.Command, store *credential.Store) error {
					token := cmd.Args().First()
					if token == "" {
						var err error
						if token, err = readToken(os.Stdin, cmd.Root().ErrWriter); err != nil {
							return err
						}
					}
					return tokenSet(ctx, cmd, store, token)
				}),
			},
			{
				Name:   "clear",
				Usage:  "remove the stored credential",
				Action: withStore(tokenClear),
			},
			{
				Name:   "inspect",
				Usage:  "decode the stored credential without verifying it",
				Action: withStore(tokenInspect),
			},
		},
	}
}

type storeAction func(ctx context.Context, cmd *cli.Command, store *credential.Store) error

// withStore runs action against the configured credential store.
func withStore(action storeAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, shutdown, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer flush(shutdown, &err)

		store, backend, err := app.NewCredentialStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.Close(backend); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("closing token store: %w", closeErr))
			}
		}()

		return action(ctx, cmd, store)
	}
}

func tokenGet(ctx context.Context, cmd *cli.Command, store *credential.Store) error {
	token := store.Get(ctx)
	if token == "" {
		return credential.ErrNoCredential
	}
	_, err := fmt.Fprintln(cmd.Root().Writer, token)
	return err
}

func tokenSet(ctx context.Context, cmd *cli.Command, store *credential.Store, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}

	store.Set(ctx, token)
	// Set is fail-soft; read back to report failures to the user.
	if store.Get(ctx) != token {
		return fmt.Errorf("credential could not be stored (see debug log)")
	}
	_, err := fmt.Fprintln(cmd.Root().ErrWriter, "credential stored")
	return err
}

func tokenClear(ctx context.Context, cmd *cli.Command, store *credential.Store) error {
	store.Clear(ctx)
	_, err := fmt.Fprintln(cmd.Root().ErrWriter, "credential cleared")
	return err
}

func tokenInspect(ctx context.Context, cmd *cli.Command, store *credential.Store) error {
	token := store.Get(ctx)
	if token == "" {
		return credential.ErrNoCredential
	}
	return inspect(cmd.Root().Writer, token, time.Now())
}

// inspection is the printed form of a decoded JWT.
type inspection struct {
	Algorithm string        `json:"alg"`
	Expired   *bool         `json:"expired,omitempty"`
	Claims    jwt.MapClaims `json:"claims"`
}

// inspect decodes token without verifying its signature and writes the
// header algorithm and claims to w as JSON.
func inspect(w io.Writer, token string, now time.Time) error {
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return fmt.Errorf("%w: %w", errNotJWT, err)
	}

	out := inspection{Claims: claims}
	if alg, ok := parsed.Header["alg"].(string); ok {
		out.Algorithm = alg
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expired := now.After(exp.Time)
		out.Expired = &expired
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// readToken reads a credential from in, without echo when in is a terminal.
func readToken(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return line, nil
}
