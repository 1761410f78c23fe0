package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/security"
	"github.com/JeffZl/frontenduas/internal/service"
	"github.com/JeffZl/frontenduas/internal/store"
)

func openStore(c *cli.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(c.Context, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	return cfg, st, nil
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "directory users",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "insert a user into the local directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "handle", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "avatar", Usage: "avatar URL"},
				},
				Action: func(c *cli.Context) error {
					_, st, err := openStore(c)
					if err != nil {
						return err
					}
					defer st.Close()

					in := service.UserCreateInput{Handle: c.String("handle"), Name: c.String("name")}
					if a := c.String("avatar"); a != "" {
						in.AvatarURL = &a
					}
					u, err := service.NewUserService(st.Users).Register(c.Context, in)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s\t@%s\t%s\n", u.ID, u.Handle, u.Name)
					return nil
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a development session token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user-id"},
			&cli.StringFlag{Name: "handle", Usage: "look the user up by handle instead of id"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (default ACCESS_TOKEN_EXPIRE_MINUTES)"},
		},
		Action: func(c *cli.Context) error {
			cfg, st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			users := service.NewUserService(st.Users)
			userID := c.String("user-id")
			switch {
			case userID != "":
				if _, err := users.GetByID(c.Context, userID); err != nil {
					return err
				}
			case c.String("handle") != "":
				p, err := users.GetByHandle(c.Context, c.String("handle"))
				if err != nil {
					return err
				}
				userID = p.ID
			default:
				return errors.New("one of --user-id or --handle is required")
			}

			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.AccessTokenTTL()
			}
			tok, err := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL()).CreateWithTTL(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}
