package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
	"github.com/trezcool/clubhub/core/session"
)

var errNoSession = errors.New("signed in, but no session user could be resolved")

// addUser signs up a new account with a trusted role and admin flag.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, role member.Role, isAdmin bool) error {
	identity, err := cli.authSvc.SignUp(ctx, member.NewAccount{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            role,
		IsAdmin:         isAdmin,
	})
	if err != nil {
		return err
	}
	return cli.printJSON(identity)
}

// actAs signs in as email, runs op with the resulting session and signs out.
func (cli *commandLine) actAs(ctx context.Context, email string, op func(actor portal.Actor) (interface{}, error)) error {
	pwd, err := cli.promptPassword()
	if err != nil {
		return err
	}

	client := auth.NewClient(cli.authSvc)
	store := session.NewStore(client, cli.profiles, cli.logger)
	defer store.Close()
	if err = store.Start(ctx); err != nil {
		return errors.Wrap(err, "starting session")
	}

	if _, err = client.SignIn(ctx, core.CleanString(email, true /* lower */), pwd); err != nil {
		return err
	}
	defer func() {
		if err := client.SignOut(context.Background()); err != nil {
			cli.logger.Warn("signing out", err)
		}
	}()
	if store.User() == nil {
		return errNoSession
	}

	res, err := op(store)
	if err != nil {
		return err
	}
	return cli.printJSON(res)
}
