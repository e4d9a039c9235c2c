package cli

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

type handler func(a *App, ctx context.Context, args []string) error

var commands = map[string]handler{
	"ingest":   (*App).cmdIngest,
	"show":     (*App).cmdShow,
	"list":     (*App).cmdList,
	"update":   (*App).cmdUpdate,
	"delete":   (*App).cmdDelete,
	"purge":    (*App).cmdPurge,
	"search":   (*App).cmdSearch,
	"tag":      (*App).cmdTag,
	"untag":    (*App).cmdUntag,
	"fav":      (*App).cmdFav,
	"unfav":    (*App).cmdUnfav,
	"favs":     (*App).cmdFavs,
	"popular":  (*App).cmdPopular,
	"tags":     (*App).cmdTags,
	"reindex":  (*App).cmdReindex,
	"export":   (*App).cmdExport,
	"audit":    (*App).cmdAudit,
	"report":   (*App).cmdReport,
	"prune":    (*App).cmdPrune,
	"rotate":   (*App).cmdRotate,
	"stats":    (*App).cmdStats,
	"spending": (*App).cmdSpending,
	"moods":    (*App).cmdMoods,
	"budget":   (*App).cmdBudget,
	"budgets":  (*App).cmdBudgets,
	"unbudget": (*App).cmdUnbudget,
}

// usages is kept apart from commands so handlers can quote it.
var usages = map[string]string{
	"ingest":   "ingest <module> [key=value ...]   store a new record",
	"show":     "show <module> <id>                 decrypt and print a record",
	"list":     "list <module> [fav] [tag=a,b] [from=] [to=]",
	"update":   "update <module> <id> key=value ... change fields",
	"delete":   "delete <module> <id>",
	"purge":    "purge <module> <before>            delete records created before a date",
	"search":   "search [words ...] [module=] [tag=a,b] [from=] [to=]",
	"tag":      "tag <module> <id> <tag>",
	"untag":    "untag <module> <id> <tag>",
	"fav":      "fav <module> <id>",
	"unfav":    "unfav <module> <id>",
	"favs":     "favs <module>                      list favorite ids",
	"popular":  "popular [n]                        most used tags",
	"tags":     "tags [pattern]                     tags matching a glob",
	"reindex":  "reindex                            rebuild the tag index",
	"export":   "export <all|module> [format=json|csv|xlsx]",
	"audit":    "audit [module=] [action=] [from=] [to=] [limit=]",
	"report":   "report [since]                     audit summary",
	"prune":    "prune <before>                     drop audit entries before a date",
	"rotate":   "rotate                             change the master passphrase",
	"stats":    "stats                              counters for this session",
	"spending": "spending [from] [to]               debits per category",
	"moods":    "moods [since]                      journal moods",
	"budget":   "budget <category> <limit> [threshold=0.9]",
	"budgets":  "budgets [date]                     budgets against that month's debits",
	"unbudget": "unbudget <category>",
}

// Usage lists one line per command, sorted by name.
func (a *App) Usage() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names)+2)
	for _, name := range names {
		out = append(out, usages[name])
	}
	return append(out, "help", "exit | quit")
}

func (a *App) Known(cmd string) bool {
	_, ok := commands[cmd]
	return ok
}

// Exec runs one command.
func (a *App) Exec(ctx context.Context, cmd string, args []string) error {
	c, ok := commands[cmd]
	if !ok {
		known := make([]string, 0, len(commands))
		for name := range commands {
			known = append(known, name)
		}
		slices.Sort(known)
		return fmt.Errorf("unknown command %q (known: %v)", cmd, known)
	}
	return c(a, ctx, args)
}
