// Command blog is a CLI client for the blog service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/and161185/blog-keeper/internal/server/grpc"
)

// ---- session store ----

type sessionFile struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "blog")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "blog")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(id string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sessionFile{SessionID: id, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), b, 0o600)
}

func loadSession() (string, error) {
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return "", err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return "", err
	}
	if sf.SessionID == "" || time.Now().After(sf.ExpiresAt) {
		return "", errors.New("no valid session (login required)")
	}
	return sf.SessionID, nil
}

func clearSession() error {
	err := os.Remove(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type pendingFile struct {
	Email  string `json:"email"`
	Ticket string `json:"mfa_ticket"`
}

func pendingPath() string { return filepath.Join(cfgDir(), "pending.json") }

func savePending(email, ticket string) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(pendingFile{Email: email, Ticket: ticket})
	if err != nil {
		return err
	}
	return os.WriteFile(pendingPath(), b, 0o600)
}

func loadPending() (pendingFile, error) {
	var pf pendingFile
	b, err := os.ReadFile(pendingPath())
	if err != nil {
		return pf, errors.New("no pending login (run `blog login` first)")
	}
	if err := json.Unmarshal(b, &pf); err != nil {
		return pf, err
	}
	return pf, nil
}

func clearPending() error {
	err := os.Remove(pendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- grpc dial ----

type sessionCreds struct{ id string }

func (s sessionCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"session-id": s.id}, nil
}
func (s sessionCreds) RequireTransportSecurity() bool { return true }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type client struct {
	cc *grpc.ClientConn
}

func dial(addr, caPath string, insecure bool, userAgent, sessionID string) (*client, error) {
	creds, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds), grpc.WithUserAgent(userAgent)}
	if sessionID != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(sessionCreds{id: sessionID}))
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &client{cc: cc}, nil
}

func (c *client) call(ctx context.Context, method string, fields map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, grpcserver.FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// decodeDataURL returns the payload of a base64 data URL.
func decodeDataURL(u string) ([]byte, error) {
	_, payload, ok := strings.Cut(u, ";base64,")
	if !ok || !strings.HasPrefix(u, "data:") {
		return nil, errors.New("not a base64 data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", st.Code(), st.Message())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func need(ok bool, msg string) {
	if !ok {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `blog CLI
Usage:
  blog -addr HOST:PORT [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  enroll     -email <email> [-qr file.png]
  register   -u <username> -email <email> -p <password> -first <name> -last <name> -secret <s> -code <otp>
  login      -email <email> -p <password>          (saves session unless MFA is due)
  mfa        -code <otp>                           (completes the pending login)
  logout
  feed
  mine
  search     -q <text>
  get        -id <mask>
  add        -title <t> (-content <c> | -file <path>)
  edit       -id <mask> -title <t> (-content <c> | -file <path>)
  rm         -id <mask>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// sessionHint mirrors the server's absolute session lifetime.
const sessionHint = 30 * time.Minute

// main dispatches subcommands and configures TLS and the session for RPC calls.
func main() {
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	userAgent := flag.String("ua", "blog-cli/"+version, "user agent the session is bound to")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	connect := func(withSession bool) *client {
		sid := ""
		if withSession {
			var err error
			if sid, err = loadSession(); err != nil {
				fail(err)
			}
		}
		c, err := dial(*addr, *caPath, *insecure, *userAgent, sid)
		if err != nil {
			fail(err)
		}
		return c
	}
	run := func(c *client, method string, fields map[string]any) map[string]any {
		defer c.cc.Close()
		out, err := c.call(ctx, method, fields)
		if err != nil {
			fail(err)
		}
		return out
	}
	keepSession := func(out map[string]any) {
		if sid, _ := out["session_id"].(string); sid != "" {
			if err := saveSession(sid, time.Now().Add(sessionHint)); err != nil {
				fail(err)
			}
			if err := clearPending(); err != nil {
				fail(err)
			}
			fmt.Println("ok")
			return
		}
		fmt.Println("mfa required: run `blog mfa -code <otp>`")
	}

	switch cmd {
	case "version":
		fmt.Printf("blog %s (%s)\n", version, buildDate)

	case "enroll":
		fs := flag.NewFlagSet("enroll", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		qr := fs.String("qr", "", "write QR code PNG to this file")
		_ = fs.Parse(args)
		out := run(connect(false), "Enroll", map[string]any{"email": *email})
		if *qr != "" {
			url, _ := out["qr_code"].(string)
			png, err := decodeDataURL(url)
			if err != nil {
				fail(err)
			}
			if err := os.WriteFile(*qr, png, 0o600); err != nil {
				fail(err)
			}
		}
		delete(out, "qr_code")
		printJSON(os.Stdout, out)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		secret := fs.String("secret", "", "secret from enroll")
		code := fs.String("code", "", "current one-time code")
		_ = fs.Parse(args)
		out := run(connect(false), "Register", map[string]any{
			"username": *u, "email": *email, "password": *p,
			"first_name": *first, "last_name": *last, "secret": *secret, "code": *code,
		})
		fmt.Println(out["result"])

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		need(*email != "" && *p != "", "need -email and -p")
		out := run(connect(false), "Login", map[string]any{"email": *email, "password": *p})
		if ticket, _ := out["mfa_ticket"].(string); ticket != "" {
			if err := savePending(*email, ticket); err != nil {
				fail(err)
			}
		}
		keepSession(out)

	case "mfa":
		fs := flag.NewFlagSet("mfa", flag.ExitOnError)
		code := fs.String("code", "", "one-time code")
		_ = fs.Parse(args)
		need(*code != "", "need -code")
		pf, err := loadPending()
		if err != nil {
			fail(err)
		}
		keepSession(run(connect(false), "VerifyMFA", map[string]any{"email": pf.Email, "code": *code, "mfa_ticket": pf.Ticket}))

	case "logout":
		if sid, err := loadSession(); err == nil {
			c, err := dial(*addr, *caPath, *insecure, *userAgent, sid)
			if err != nil {
				fail(err)
			}
			run(c, "Logout", nil)
		}
		if err := clearSession(); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "feed":
		printJSON(os.Stdout, run(connect(true), "Feed", nil)["posts"])

	case "mine":
		printJSON(os.Stdout, run(connect(true), "MyPosts", nil)["posts"])

	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		q := fs.String("q", "", "text to look for")
		_ = fs.Parse(args)
		printJSON(os.Stdout, run(connect(true), "Search", map[string]any{"query": *q})["posts"])

	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		id := fs.String("id", "", "post id")
		_ = fs.Parse(args)
		need(*id != "", "need -id")
		printJSON(os.Stdout, run(connect(true), "GetPost", map[string]any{"id": *id})["post"])

	case "add", "edit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "post id (edit)")
		title := fs.String("title", "", "title")
		content := fs.String("content", "", "content")
		file := fs.String("file", "", "read content from file or - for stdin")
		_ = fs.Parse(args)
		if *file != "" {
			b, err := readAll(*file)
			if err != nil {
				fail(err)
			}
			*content = string(b)
		}
		if cmd == "add" {
			out := run(connect(true), "AddPost", map[string]any{"title": *title, "content": *content})
			fmt.Println(out["id"])
			return
		}
		need(*id != "", "need -id")
		run(connect(true), "EditPost", map[string]any{"id": *id, "title": *title, "content": *content})
		fmt.Println("ok")

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		id := fs.String("id", "", "post id")
		_ = fs.Parse(args)
		need(*id != "", "need -id")
		run(connect(true), "DeletePost", map[string]any{"id": *id})
		fmt.Println("ok")

	default:
		usage()
	}
}
