package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/procman"
	"github.com/loykin/procman/pkg/client"
)

const commandTimeout = 30 * time.Second

// command bundles the global flags every subcommand needs. Each run
// opens the store, performs one operation, and closes it again; only
// serve keeps the manager alive.
type command struct {
	global *GlobalFlags
}

// withManager runs fn against a locally opened manager.
func (c *command) withManager(fn func(ctx context.Context, mgr *procman.Manager) error) error {
	cfg, err := procman.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	mgr, err := procman.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()
	return fn(ctx, mgr)
}

// remote returns an API client when --api-url was given, nil otherwise.
func (c *command) remote() *client.Client {
	if c.global.APIUrl == "" {
		return nil
	}
	return client.New(client.Config{
		BaseURL: c.global.APIUrl,
		Token:   c.global.Token,
		Timeout: commandTimeout,
	})
}

func (c *command) formatter() (formatter, error) {
	return newFormatter(c.global.Format)
}

func (c *command) Start(f StartFlags, name, cmdStr string, args []string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	env := parseEnvVars(f.Env)

	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		rec, err := api.Start(ctx, client.StartRequest{
			Name:       name,
			Command:    cmdStr,
			Args:       args,
			EnvVars:    env,
			WorkingDir: f.WorkDir,
			LogDir:     f.LogDir,
		})
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(toRecord(rec)))
		return nil
	}

	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		rec, err := mgr.Start(ctx, procman.Spec{
			Name:       name,
			Command:    cmdStr,
			Args:       args,
			Env:        env,
			WorkingDir: f.WorkDir,
			LogDir:     f.LogDir,
		})
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(rec))
		return nil
	})
}

func (c *command) Stop(name string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := api.Stop(ctx, name); err != nil {
			return err
		}
		fmt.Println(fm.Success(fmt.Sprintf("Process '%s' stopped", name)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		if err := mgr.Stop(ctx, name); err != nil {
			return err
		}
		fmt.Println(fm.Success(fmt.Sprintf("Process '%s' stopped", name)))
		return nil
	})
}

func (c *command) Restart(name string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		rec, err := api.Restart(ctx, name)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(toRecord(rec)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		rec, err := mgr.Restart(ctx, name)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(rec))
		return nil
	})
}

func (c *command) Delete(name string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := api.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Println(fm.Success(fmt.Sprintf("Process '%s' deleted", name)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		if err := mgr.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Println(fm.Success(fmt.Sprintf("Process '%s' deleted", name)))
		return nil
	})
}

func (c *command) List() error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		recs, err := api.List(ctx)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessList(toRecords(recs)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		recs, err := mgr.List(ctx)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessList(recs))
		return nil
	})
}

func (c *command) Status(name string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		rec, err := api.Status(ctx, name)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(toRecord(rec)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		rec, err := mgr.Status(ctx, name)
		if err != nil {
			return err
		}
		fmt.Println(fm.ProcessStatus(rec))
		return nil
	})
}

func (c *command) Logs(f LogsFlags, name string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		switch {
		case f.Rotate:
			if err := api.RotateLogs(ctx, name); err != nil {
				return err
			}
			fmt.Println(fm.Success(fmt.Sprintf("Log file rotated for process '%s'", name)))
		case f.Rotated:
			paths, err := api.RotatedLogs(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(fm.RotatedLogs(name, paths))
		default:
			logs, err := api.Logs(ctx, name, f.Lines)
			if err != nil {
				return err
			}
			fmt.Print(fm.Logs(name, logs))
		}
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		switch {
		case f.Rotate:
			if err := mgr.RotateLogs(ctx, name); err != nil {
				return err
			}
			fmt.Println(fm.Success(fmt.Sprintf("Log file rotated for process '%s'", name)))
		case f.Rotated:
			paths, err := mgr.RotatedLogs(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(fm.RotatedLogs(name, paths))
		default:
			logs, err := mgr.Logs(ctx, name, f.Lines)
			if err != nil {
				return err
			}
			fmt.Print(fm.Logs(name, logs))
		}
		return nil
	})
}

func (c *command) Clear(all bool) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	if api := c.remote(); api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := api.Clear(ctx, all)
		if err != nil {
			return err
		}
		fmt.Println(fm.ClearResult(toClearResult(res)))
		return nil
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		res, err := mgr.Clear(ctx, all)
		if err != nil {
			return err
		}
		fmt.Println(fm.ClearResult(res))
		return nil
	})
}

func (c *command) AuthGenerate(name string, expiresInDays int) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		tok, err := mgr.GenerateToken(ctx, name, expiresInDays)
		if err != nil {
			return err
		}
		fmt.Println(fm.Token(tok))
		return nil
	})
}

func (c *command) AuthList() error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		tokens, err := mgr.ListTokens(ctx)
		if err != nil {
			return err
		}
		fmt.Println(fm.TokenList(tokens))
		return nil
	})
}

func (c *command) AuthRevoke(value string) error {
	fm, err := c.formatter()
	if err != nil {
		return err
	}
	return c.withManager(func(ctx context.Context, mgr *procman.Manager) error {
		revoked, err := mgr.RevokeToken(ctx, value)
		if err != nil {
			return err
		}
		if !revoked {
			return fmt.Errorf("token not found")
		}
		fmt.Println(fm.Success("Token revoked"))
		return nil
	})
}

// parseEnvVars turns KEY=VALUE strings into a map, skipping malformed
// entries.
func parseEnvVars(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

func toRecord(r client.ProcessRecord) procman.Record {
	return procman.Record{
		ID:         r.ID,
		Name:       r.Name,
		Command:    r.Command,
		Args:       r.Args,
		EnvVars:    r.EnvVars,
		WorkingDir: r.WorkingDir,
		PID:        r.PID,
		Status:     procman.Status(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		LogPath:    r.LogPath,
	}
}

func toRecords(recs []client.ProcessRecord) []procman.Record {
	out := make([]procman.Record, len(recs))
	for i, r := range recs {
		out[i] = toRecord(r)
	}
	return out
}

func toClearResult(r client.ClearResult) procman.ClearResult {
	return procman.ClearResult{
		ClearedCount:  r.ClearedCount,
		ClearedNames:  r.ClearedNames,
		FailedNames:   r.FailedNames,
		OperationType: r.OperationType,
	}
}
