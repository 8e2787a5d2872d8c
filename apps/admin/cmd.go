package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
	"github.com/trezcool/clubhub/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword    // mockable
	gooseRunFunc     = database.RunMigration // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	authSvc   *auth.Service
	portalSvc *portal.Service
	profiles  member.ProfileReader
	logger    core.Logger
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-role ROLE] [-admin] - create an account")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset an account's password and sign it out everywhere")
	fmt.Fprintln(cli.out, "  createchapter -as EMAIL -name NAME - create a chapter")
	fmt.Fprintln(cli.out, "  createclub -as EMAIL -name NAME -chapter ID - create a club")
	fmt.Fprintln(cli.out, "  assignhead -as EMAIL -user ID -club ID - make a member head of a club")
	fmt.Fprintln(cli.out, "  givecredits -as EMAIL -to ID -amount N -reason TEXT [-event ID] - award credits")
	fmt.Fprintln(cli.out, "Commands taking -as sign in with that account; its password is prompted.")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return gooseRunFunc(cli.db, args[2], args[3:]...)

	case "adduser":
		cmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
		name := cmd.String("name", "", "The member's full name.")
		email := cmd.String("email", "", "The member's email. The password will be prompted next.")
		role := cmd.String("role", string(member.RoleMember), "One of member, club_head, admin.")
		isAdmin := cmd.Bool("admin", false, "Grant the admin flag.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *name == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *name, *email, pwd, member.Role(*role), *isAdmin)

	case "resetpassword":
		cmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
		email := cmd.String("email", "", "The account's email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.authSvc.ResetPassword(ctx, *email, pwd)

	case "createchapter":
		cmd := flag.NewFlagSet("createchapter", flag.ContinueOnError)
		as := cmd.String("as", "", "Email of the admin to act as.")
		name := cmd.String("name", "", "The chapter's name.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *as == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.actAs(ctx, *as, func(actor portal.Actor) (interface{}, error) {
			return cli.portalSvc.CreateChapter(ctx, actor, portal.NewChapter{Name: *name})
		})

	case "createclub":
		cmd := flag.NewFlagSet("createclub", flag.ContinueOnError)
		as := cmd.String("as", "", "Email of the admin to act as.")
		name := cmd.String("name", "", "The club's name.")
		chapterID := cmd.String("chapter", "", "ID of the club's chapter.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *as == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.actAs(ctx, *as, func(actor portal.Actor) (interface{}, error) {
			return cli.portalSvc.CreateClub(ctx, actor, portal.NewClub{Name: *name, ChapterID: *chapterID})
		})

	case "assignhead":
		cmd := flag.NewFlagSet("assignhead", flag.ContinueOnError)
		as := cmd.String("as", "", "Email of the admin to act as.")
		userID := cmd.String("user", "", "ID of the member to promote.")
		clubID := cmd.String("club", "", "ID of the club.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *as == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.actAs(ctx, *as, func(actor portal.Actor) (interface{}, error) {
			err := cli.portalSvc.AssignClubHead(ctx, actor, portal.AssignClubHead{UserID: *userID, ClubID: *clubID})
			return nil, err
		})

	case "givecredits":
		cmd := flag.NewFlagSet("givecredits", flag.ContinueOnError)
		as := cmd.String("as", "", "Email of the club head or admin to act as.")
		to := cmd.String("to", "", "ID of the recipient.")
		amount := cmd.Int("amount", 0, "Number of credits, 1 to 100.")
		reason := cmd.String("reason", "", "Why the credits are awarded.")
		eventID := cmd.String("event", "", "ID of the related event, if any.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *as == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.actAs(ctx, *as, func(actor portal.Actor) (interface{}, error) {
			return cli.portalSvc.GiveCredits(ctx, actor, portal.GiveCredits{
				RecipientID: *to,
				Amount:      *amount,
				Reason:      *reason,
				EventID:     *eventID,
			})
		})

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) printJSON(v interface{}) error {
	if v == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(data))
	return err
}
