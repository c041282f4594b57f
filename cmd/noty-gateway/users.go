// ABOUTME: User management commands for the credential store
// ABOUTME: adduser, deluser, and users operate on database.path from the config

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/noty-gateway/internal/auth"
	"github.com/2389/noty-gateway/internal/store"
)

// userArgs holds the parsed flags of adduser and deluser.
type userArgs struct {
	userID   string
	password string
	force    bool
}

// parseUserArgs accepts both "--flag value" and "--flag=value".
func parseUserArgs(args []string, allowPassword bool) (userArgs, error) {
	var ua userArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return ua, fmt.Errorf("%s requires a value", arg)
			}
			ua.userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			ua.userID = strings.TrimPrefix(arg, "--user=")
		case allowPassword && (arg == "--password" || arg == "-p"):
			if i+1 >= len(args) {
				return ua, fmt.Errorf("%s requires a value", arg)
			}
			ua.password = args[i+1]
			i++
		case allowPassword && strings.HasPrefix(arg, "--password="):
			ua.password = strings.TrimPrefix(arg, "--password=")
		case allowPassword && arg == "--force":
			ua.force = true
		case strings.HasPrefix(arg, "-"):
			return ua, fmt.Errorf("unknown flag: %s", arg)
		default:
			return ua, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if ua.userID == "" {
		return ua, errors.New("--user flag is required")
	}
	if !auth.ValidUserID(ua.userID) {
		return ua, fmt.Errorf("user id %q contains characters not allowed in a cookie", ua.userID)
	}
	return ua, nil
}

// openStore opens the credential store named by the loaded config.
func openStore() (*store.SQLiteStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("NOTY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, errors.New("database.path is not set in the config")
	}
	return store.NewSQLiteStore(dbPath)
}

func runAddUser(ctx context.Context, args []string) error {
	ua, err := parseUserArgs(args, true)
	if err != nil {
		return err
	}
	if ua.password == "" {
		ua.password, err = readPassword(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	created, err := addUser(ctx, s, ua)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if created {
		green.Printf("Added user %s\n", ua.userID)
	} else {
		green.Printf("Updated password for %s\n", ua.userID)
	}
	return nil
}

// addUser creates the user, or with force replaces an existing password.
// Reports whether a new user was created.
func addUser(ctx context.Context, s store.CredentialStore, ua userArgs) (bool, error) {
	hash, err := auth.HashPassword(ua.password)
	if err != nil {
		return false, err
	}

	err = s.CreateUser(ctx, &store.User{ID: ua.userID, PasswordHash: hash})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrUserExists) && ua.force:
		if err := s.UpdatePassword(ctx, ua.userID, hash); err != nil {
			return false, fmt.Errorf("updating password: %w", err)
		}
		return false, nil
	case errors.Is(err, store.ErrUserExists):
		return false, fmt.Errorf("user %s already exists (use --force to reset the password)", ua.userID)
	default:
		return false, fmt.Errorf("creating user: %w", err)
	}
}

// readPassword prompts for a password on a single line.
func readPassword(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

func runDelUser(ctx context.Context, args []string) error {
	ua, err := parseUserArgs(args, false)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteUser(ctx, ua.userID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("no such user: %s", ua.userID)
		}
		return fmt.Errorf("deleting user: %w", err)
	}
	color.New(color.FgGreen).Printf("Deleted user %s\n", ua.userID)
	return nil
}

func runListUsers(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return listUsers(ctx, s, os.Stdout)
}

func listUsers(ctx context.Context, s store.CredentialStore, w io.Writer) error {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		fmt.Fprintln(w, "No users.")
		return nil
	}
	for _, u := range users {
		fmt.Fprintf(w, "%-24s created %s\n", u.ID, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
