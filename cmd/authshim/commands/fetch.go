package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/authshim/internal/app"
	"github.com/florianilch/authshim/internal/fetch"
	"github.com/florianilch/authshim/internal/interceptor"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "issue one call through the intercepted primitives",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "xhr",
				Usage: "use the two-phase call primitive instead of the single-call one",
			},
			&cli.BoolFlag{
				Name:  "transport",
				Usage: "use a plain http.Client over the intercepted default transport",
			},
			&cli.StringFlag{
				Name:    "request",
				Aliases: []string{"X"},
				Usage:   "request method",
				Value:   http.MethodGet,
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "request header as 'Name: value' (repeatable)",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body",
			},
		},
		Action: fetchAction,
	}
}

// call describes one invocation of the fetch command.
type call struct {
	method string
	url    string
	header http.Header
	body   string
}

func (c call) bodyReader() io.Reader {
	if c.body == "" {
		return nil
	}
	return strings.NewReader(c.body)
}

func parseHeaders(values []string) (http.Header, error) {
	header := make(http.Header)
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", v)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}

func fetchAction(ctx context.Context, cmd *cli.Command) (err error) {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one URL argument")
	}

	header, err := parseHeaders(cmd.StringSlice("header"))
	if err != nil {
		return err
	}
	c := call{
		method: strings.ToUpper(cmd.String("request")),
		url:    cmd.Args().First(),
		header: header,
		body:   cmd.String("data"),
	}

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

	i, err := app.NewInterceptor(cfg, store)
	if err != nil {
		return err
	}
	host, err := app.NewHost(cfg, i)
	if err != nil {
		return err
	}

	if cmd.Bool("xhr") && cmd.Bool("transport") {
		return fmt.Errorf("--xhr and --transport are mutually exclusive")
	}
	if cmd.Bool("transport") {
		base, err := url.Parse(cfg.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
		i.InstallDefaultTransport()
		client := &http.Client{Timeout: cfg.Upstream.Timeout}
		return sendTransport(ctx, client, base, c, cmd.Root().Writer, cmd.Root().ErrWriter)
	}
	if cmd.Bool("xhr") {
		return sendXHR(ctx, host, c, cmd.Root().Writer, cmd.Root().ErrWriter)
	}
	return sendFetch(ctx, host, c, cmd.Root().Writer, cmd.Root().ErrWriter)
}

func sendFetch(ctx context.Context, host *interceptor.Host, c call, stdout, stderr io.Writer) error {
	resp, err := host.Fetch(ctx, fetch.String(c.url), &fetch.Init{
		Method: c.method,
		Header: c.header,
		Body:   c.bodyReader(),
	})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	fmt.Fprintln(stderr, resp.Status)
	if _, err := io.Copy(stdout, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}

// sendTransport issues the call with a client whose transport is the
// intercepted http.DefaultTransport.
func sendTransport(ctx context.Context, client *http.Client, base *url.URL, c call, stdout, stderr io.Writer) error {
	target, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, base.ResolveReference(target).String(), c.bodyReader())
	if err != nil {
		return err
	}
	for name, values := range c.header {
		req.Header[name] = values
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	fmt.Fprintln(stderr, resp.Status)
	if _, err := io.Copy(stdout, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}

func sendXHR(ctx context.Context, host *interceptor.Host, c call, stdout, stderr io.Writer) error {
	req := host.NewXHR(ctx)
	if err := req.Open(c.method, c.url); err != nil {
		return err
	}
	for name, values := range c.header {
		for _, v := range values {
			if err := req.SetRequestHeader(name, v); err != nil {
				return err
			}
		}
	}
	if err := req.Send(c.bodyReader()); err != nil {
		return err
	}

	select {
	case <-req.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := req.Err(); err != nil {
		return fmt.Errorf("xhr failed: %w", err)
	}

	fmt.Fprintf(stderr, "%d %s\n", req.Status(), http.StatusText(req.Status()))
	_, err := io.WriteString(stdout, req.ResponseText())
	return err
}
