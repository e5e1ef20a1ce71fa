// casetrail-admin is the operator CLI for schema migrations, bootstrap
// seeding, and authorization maintenance. It talks to PostgreSQL
// directly and never goes through the HTTP API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/cases"
	"github.com/casetrail/casetrail/pkg/directory"
	"github.com/casetrail/casetrail/pkg/observability"
)

var log = logrus.New()

func main() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "migrate":
		err = cmdMigrate(args)
	case "seed-groups":
		err = cmdSeedGroups(args)
	case "create-admin":
		err = cmdCreateAdmin(args)
	case "recompute":
		err = cmdRecompute(args)
	case "sweep":
		err = cmdSweep(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: casetrail-admin <command> [flags]

Commands:
  migrate       Apply database migrations
  seed-groups   Create the default groups with their permission sets
  create-admin  Create a server administrator and issue an API token
  recompute     Invalidate every cached permission set
  sweep         Report dangling authorization grants

All commands read the database URL from -db or CASETRAIL_POSTGRES_URL.
`)
}

func openDB(fs *flag.FlagSet, args []string) (*sql.DB, error) {
	dbURL := fs.String("db", os.Getenv("CASETRAIL_POSTGRES_URL"), "PostgreSQL connection URL")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *dbURL == "" {
		return nil, fmt.Errorf("database URL is required (-db or CASETRAIL_POSTGRES_URL)")
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	db, err := openDB(fs, args)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	// Order matters: authorization tables reference directory and case
	// rows by id.
	log.Info("applying directory migrations")
	if err := directory.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("directory migrations: %w", err)
	}
	log.Info("applying case migrations")
	if err := cases.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("case migrations: %w", err)
	}
	log.Info("applying authorization migrations")
	if err := authz.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("authorization migrations: %w", err)
	}
	log.Info("ensuring audit trail table")
	if _, err := audit.NewDBLogger(db); err != nil {
		return fmt.Errorf("audit table: %w", err)
	}
	log.Info("ensuring API token table")
	if err := auth.NewTokenManager(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("token table: %w", err)
	}

	log.Info("migrations complete")
	return nil
}

// defaultGroups maps bootstrap group names to their permission sets.
var defaultGroups = map[string]authz.PermissionSet{
	"analysts": authz.NewPermissionSet(
		authz.PermStandardUser,
		authz.PermAlertsRead,
		authz.PermActivitiesRead,
	),
	"responders": authz.NewPermissionSet(
		authz.PermStandardUser,
		authz.PermAlertsRead,
		authz.PermAlertsWrite,
		authz.PermActivitiesRead,
		authz.PermSearchAcrossCases,
	),
	"managers": authz.NewPermissionSet(
		authz.PermStandardUser,
		authz.PermAlertsRead,
		authz.PermAlertsWrite,
		authz.PermActivitiesRead,
		authz.PermAllActivitiesRead,
		authz.PermSearchAcrossCases,
		authz.PermCustomersRead,
		authz.PermCustomersWrite,
		authz.PermReadUsers,
	),
	"administrators": authz.NewPermissionSet(
		authz.PermServerAdministrator,
	),
}

func cmdSeedGroups(args []string) error {
	fs := flag.NewFlagSet("seed-groups", flag.ExitOnError)
	db, err := openDB(fs, args)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	service := newDirectoryService(db)

	existing, err := service.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	byName := make(map[string]int64, len(existing))
	for _, g := range existing {
		byName[g.Name] = g.ID
	}

	for name, perms := range defaultGroups {
		id, ok := byName[name]
		if !ok {
			group, err := service.CreateGroup(ctx, directory.CreateGroupRequest{
				Name:        name,
				Description: "seeded default group",
			}, nil)
			if err != nil {
				return fmt.Errorf("create group %s: %w", name, err)
			}
			id = group.ID
			log.WithField("group", name).Info("group created")
		} else {
			log.WithField("group", name).Info("group exists, resetting permissions")
		}
		if err := service.SetGroupPermissions(ctx, id, perms, nil); err != nil {
			return fmt.Errorf("set permissions for %s: %w", name, err)
		}
	}

	log.Info("default groups seeded")
	return nil
}

func cmdCreateAdmin(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "Administrator username (required)")
	email := fs.String("email", "", "Administrator email")
	fullName := fs.String("full-name", "", "Administrator display name")
	tokenName := fs.String("token-name", "bootstrap", "Name for the issued API token")
	tokenTTL := fs.Duration("token-ttl", 0, "Token lifetime (0 means no expiry)")
	db, err := openDB(fs, args)
	if err != nil {
		return err
	}
	defer db.Close()

	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	ctx := context.Background()
	service := newDirectoryService(db)

	user, err := service.CreateUser(ctx, directory.CreateUserRequest{
		Username: *username,
		Email:    *email,
		FullName: *fullName,
	}, nil)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := service.SetUserPermissions(ctx, user.ID,
		authz.NewPermissionSet(authz.PermServerAdministrator), nil); err != nil {
		return fmt.Errorf("grant server_administrator: %w", err)
	}

	var expiresAt *time.Time
	if *tokenTTL > 0 {
		t := time.Now().Add(*tokenTTL)
		expiresAt = &t
	}
	token, secret, err := auth.NewTokenManager(db).CreateToken(ctx, user.ID,
		*tokenName, "issued by casetrail-admin create-admin", expiresAt)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
		"token_id": token.ID,
	}).Info("administrator created")

	// The secret is printed once and never stored in clear.
	fmt.Printf("API token: %s\n", secret)
	return nil
}

func cmdRecompute(args []string) error {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	db, err := openDB(fs, args)
	if err != nil {
		return err
	}
	defer db.Close()

	resolver := newResolver(db)
	invalidated, err := resolver.RecomputeAllUsers(context.Background())
	if err != nil {
		return err
	}
	log.WithField("users", invalidated).Info("permission caches invalidated")
	return nil
}

func cmdSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	db, err := openDB(fs, args)
	if err != nil {
		return err
	}
	defer db.Close()

	resolver := newResolver(db)
	counts, err := resolver.SweepIntegrity(context.Background())
	if err != nil {
		return err
	}
	if counts.Total() == 0 {
		log.Info("no dangling grants")
		return nil
	}
	log.WithFields(logrus.Fields{
		"user_case_access":  counts.UserCaseAccess,
		"group_case_access": counts.GroupCaseAccess,
		"org_case_access":   counts.OrgCaseAccess,
		"user_permissions":  counts.UserPermissions,
		"group_permissions": counts.GroupPerms,
	}).Warn("dangling grants found")
	return nil
}

// newDirectoryService builds a directory service for CLI use. The audit
// trail still records seeding and admin creation; structured request
// logging is discarded because logrus carries the operator output.
func newDirectoryService(db *sql.DB) directory.Service {
	quiet := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := authz.NewStore(db)
	resolver := authz.NewResolver(store, authz.NewMemoryCache(128, time.Minute), quiet, nil)
	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("init audit logger: %v", err)
	}
	return directory.NewPostgresService(db, store, resolver, auditLog, quiet)
}

func newResolver(db *sql.DB) *authz.Resolver {
	quiet := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := authz.NewStore(db)
	return authz.NewResolver(store, authz.NewMemoryCache(128, time.Minute), quiet, nil)
}
