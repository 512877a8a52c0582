package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/aristath/frontbuild/internal/assets"
	"github.com/aristath/frontbuild/internal/builderrors"
	"github.com/aristath/frontbuild/internal/scheduler"
)

// Task names that are not asset classes.
const (
	TaskClean = "clean"
	TaskBuild = "build"
)

// taskDefs declares the build graph: one task per asset class, clean, and
// build depending on every class.
func (c *Context) taskDefs() []scheduler.TaskDef {
	defs := []scheduler.TaskDef{
		{Name: TaskClean, Action: c.clean},
	}
	deps := make([]string, 0, len(c.Classes))
	for _, cls := range c.Classes {
		defs = append(defs, scheduler.TaskDef{Name: cls.Name, Action: c.classAction(cls)})
		deps = append(deps, cls.Name)
	}
	defs = append(defs, scheduler.TaskDef{
		Name:      TaskBuild,
		DependsOn: deps,
		Action: func(context.Context) error {
			c.Logger.Info("Building the project ...")
			return nil
		},
	})
	return defs
}

// clean removes the output tree. A missing tree is already clean.
func (c *Context) clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Logger.Info("cleaning output", "path", c.rel(c.OutDir))
	if err := os.RemoveAll(c.OutDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &builderrors.IOError{Op: "remove", Path: c.OutDir, Err: err}
	}
	return nil
}

func (c *Context) classAction(cls *assets.Class) scheduler.Action {
	return func(ctx context.Context) error {
		res, err := cls.Pipeline.Run(ctx)
		c.setResult(cls.Name, res)
		return err
	}
}
