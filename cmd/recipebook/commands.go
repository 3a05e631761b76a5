package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/maruel/recipebook/internal/blobstore"
	"github.com/maruel/recipebook/internal/config"
	apperrors "github.com/maruel/recipebook/internal/errors"
	"github.com/maruel/recipebook/internal/journal"
	"github.com/maruel/recipebook/internal/recipe"
	"github.com/maruel/recipebook/internal/store"
)

type command struct {
	name string
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"list", "List recipes", (*app).cmdList},
	{"show", "Show one recipe: show <id>", (*app).cmdShow},
	{"add", "Add a recipe: add -name N -difficulty D -time M -ingredients I -method T", (*app).cmdAdd},
	{"update", "Update fields of a recipe: update <id> [add flags]", (*app).cmdUpdate},
	{"delete", "Delete a recipe: delete <id>", (*app).cmdDelete},
	{"clear", "Delete all recipes", (*app).cmdClear},
	{"schema", "Print the JSON Schema of the stored collection", (*app).cmdSchema},
	{"history", "Show commits of the collection (git backend): history [-n N]", (*app).cmdHistory},
	{"log", "Show the operation journal", (*app).cmdLog},
	{"watch", "Print the collection every time it changes on disk", (*app).cmdWatch},
}

// app holds what a command needs.
type app struct {
	cfg     *config.Config
	out     io.Writer
	log     *slog.Logger
	files   *blobstore.FileStore
	git     *blobstore.GitStore // nil unless the git backend is used
	journal *journal.Journal    // nil when disabled
	store   *store.Store
}

// openApp builds the blob store, journal and store described by cfg, then
// loads the collection.
//
// A corrupt blob is quarantined by the store; the app continues with an empty
// collection.
func openApp(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, out: out, log: logger}
	var blobs blobstore.Store
	switch cfg.Backend {
	case config.BackendGit:
		g, err := blobstore.NewGitStore(cfg.DataDir, blobstore.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail})
		if err != nil {
			return nil, err
		}
		a.git = g
		a.files = g.FileStore
		blobs = g
	default:
		f, err := blobstore.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		a.files = f
		blobs = f
	}
	opts := &store.Options{Key: cfg.Key, Logger: logger}
	if p := cfg.JournalPath(); p != "" {
		j, err := journal.Open(p)
		if err != nil {
			return nil, err
		}
		a.journal = j
		opts.Journal = j
	}
	a.store = store.New(blobs, opts)
	if err := a.store.Load(ctx); err != nil {
		var cerr *store.CorruptStateError
		if !errors.As(err, &cerr) {
			_ = a.store.Close(ctx)
			return nil, err
		}
		logger.WarnContext(ctx, "continuing with an empty collection", "quarantine", cerr.QuarantineKey)
	}
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	return a.store.Close(ctx)
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func noArgs(name string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%s: unexpected arguments: %v", name, args)
	}
	return nil
}

// idArg splits "<id> [flags]".
func idArg(args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, apperrors.MissingField("id")
	}
	return args[0], args[1:], nil
}

func (a *app) cmdList(_ context.Context, args []string) error {
	if err := noArgs("list", args); err != nil {
		return err
	}
	a.printList(a.store.Recipes())
	return nil
}

func (a *app) printList(recipes []*recipe.Recipe) {
	if len(recipes) == 0 {
		fmt.Fprintln(a.out, "no recipes")
		return
	}
	for _, r := range recipes {
		fmt.Fprintln(a.out, r.String())
	}
}

func (a *app) cmdShow(_ context.Context, args []string) error {
	id, rest, err := idArg(args)
	if err != nil {
		return err
	}
	if err := noArgs("show", rest); err != nil {
		return err
	}
	r, ok := a.store.Get(id)
	if !ok {
		return apperrors.NotFound("recipe " + id)
	}
	fmt.Fprintf(a.out, "%s\n", r.Name)
	fmt.Fprintf(a.out, "  id:          %s\n", r.ID)
	fmt.Fprintf(a.out, "  difficulty:  %s\n", recipe.DifficultyLabel(r.Difficulty))
	fmt.Fprintf(a.out, "  time:        %s min\n", recipe.PrepTimeLabel(r.PrepTime))
	fmt.Fprintf(a.out, "  ingredients:\n")
	for _, line := range strings.Split(recipe.FormatIngredients(r.Ingredients), "\n") {
		if line != "" {
			fmt.Fprintf(a.out, "    %s\n", line)
		}
	}
	fmt.Fprintf(a.out, "  method:\n    %s\n", r.Method)
	return nil
}

// recipeFlags registers the fields shared by add and update.
type recipeFlags struct {
	fs          *flag.FlagSet
	name        *string
	difficulty  *string
	prepTime    *int
	ingredients *string
	method      *string
}

func newRecipeFlags(cmd string) *recipeFlags {
	fs := newFlagSet(cmd)
	return &recipeFlags{
		fs:          fs,
		name:        fs.String("name", "", "Recipe name"),
		difficulty:  fs.String("difficulty", "", "Difficulty (facil, media, dificil)"),
		prepTime:    fs.Int("time", 0, "Preparation time in minutes"),
		ingredients: fs.String("ingredients", "", "Ingredients as \"<quantity> de <name>\", separated by ';' or newlines"),
		method:      fs.String("method", "", "Preparation method"),
	}
}

func (f *recipeFlags) parseIngredients() []recipe.Ingredient {
	return recipe.ParseIngredients(strings.ReplaceAll(*f.ingredients, ";", "\n"))
}

func (f *recipeFlags) input() recipe.Input {
	return recipe.Input{
		Name:        *f.name,
		Difficulty:  *f.difficulty,
		PrepTime:    *f.prepTime,
		Ingredients: f.parseIngredients(),
		Method:      *f.method,
	}
}

// patch returns the fields explicitly set on the command line.
func (f *recipeFlags) patch() recipe.Patch {
	var p recipe.Patch
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			p.Name = f.name
		case "difficulty":
			p.Difficulty = f.difficulty
		case "time":
			p.PrepTime = f.prepTime
		case "ingredients":
			p.Ingredients = f.parseIngredients()
			if p.Ingredients == nil {
				p.Ingredients = []recipe.Ingredient{}
			}
		case "method":
			p.Method = f.method
		}
	})
	return p
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	f := newRecipeFlags("add")
	if err := f.fs.Parse(args); err != nil {
		return apperrors.Invalid(err.Error())
	}
	if err := noArgs("add", f.fs.Args()); err != nil {
		return err
	}
	in := f.input()
	if err := in.Validate(); err != nil {
		return err
	}
	res := a.store.Create(ctx, in)
	if err := res.Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Recipe.ID)
	return nil
}

func (a *app) cmdUpdate(ctx context.Context, args []string) error {
	id, rest, err := idArg(args)
	if err != nil {
		return err
	}
	f := newRecipeFlags("update")
	if err := f.fs.Parse(rest); err != nil {
		return apperrors.Invalid(err.Error())
	}
	if err := noArgs("update", f.fs.Args()); err != nil {
		return err
	}
	p := f.patch()
	if p.IsEmpty() {
		return apperrors.Invalid("nothing to update")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	res := a.store.Update(ctx, id, p)
	if err := res.Wait(ctx); err != nil {
		return err
	}
	if res.Outcome == store.NoMatch {
		return apperrors.NotFound("recipe " + id)
	}
	fmt.Fprintln(a.out, res.Recipe.String())
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	id, rest, err := idArg(args)
	if err != nil {
		return err
	}
	if err := noArgs("delete", rest); err != nil {
		return err
	}
	res := a.store.Delete(ctx, id)
	if err := res.Wait(ctx); err != nil {
		return err
	}
	if res.Outcome == store.NoMatch {
		return apperrors.NotFound("recipe " + id)
	}
	return nil
}

func (a *app) cmdClear(ctx context.Context, args []string) error {
	if err := noArgs("clear", args); err != nil {
		return err
	}
	return a.store.ClearAll(ctx).Wait(ctx)
}

func (a *app) cmdSchema(_ context.Context, args []string) error {
	if err := noArgs("schema", args); err != nil {
		return err
	}
	data, err := json.MarshalIndent(recipe.Schema(), "", "  ")
	if err != nil {
		return apperrors.Internal("failed to encode schema", err)
	}
	_, err = fmt.Fprintf(a.out, "%s\n", data)
	return err
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := newFlagSet("history")
	n := fs.Int("n", 10, "Number of commits to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return apperrors.Invalid(err.Error())
	}
	if err := noArgs("history", fs.Args()); err != nil {
		return err
	}
	if a.git == nil {
		return apperrors.Invalid("history requires the git backend")
	}
	commits, err := a.git.History(ctx, a.store.Key(), *n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		hash := c.Hash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		fmt.Fprintf(a.out, "%s %s %s\n", hash, c.When.Format("2006-01-02 15:04:05"), c.Message)
	}
	return nil
}

func (a *app) cmdLog(_ context.Context, args []string) error {
	if err := noArgs("log", args); err != nil {
		return err
	}
	if a.journal == nil {
		return apperrors.Invalid("the journal is disabled")
	}
	for e := range a.journal.All() {
		line := fmt.Sprintf("%s %-6s", e.Time.Format("2006-01-02 15:04:05"), e.Op)
		if e.ID != "" {
			line += " " + e.ID
		}
		if e.Outcome != "" {
			line += " " + e.Outcome
		}
		line += fmt.Sprintf(" count=%d", e.Count)
		if e.Err != "" {
			line += " err=" + e.Err
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if err := noArgs("watch", args); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	states, unsubscribe := a.store.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-states:
				if !st.Loading {
					a.printList(st.Recipes)
				}
			}
		}
	})
	err := a.files.Watch(ctx, a.store.Key(), a.cfg.WatchInterval, func() {
		if err := a.store.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.ErrorContext(ctx, "reload failed", "err", err)
		}
	})
	cancel()
	wg.Wait()
	return err
}
