package engine

import (
	"fmt"
	"strings"

	log "github.com/golang/glog"

	"github.com/Dune-Z/Seminaive-Datalog/analysis"
	"github.com/Dune-Z/Seminaive-Datalog/ast"
	"github.com/Dune-Z/Seminaive-Datalog/store"
)

// Runtime owns the backend connections and drives one evaluation of a
// program: verify base tables, stage them into memory, run every stratum to
// a fixpoint, write queries, and persist the result back to disk.
type Runtime struct {
	dbPath   string
	verbose  bool
	context  *analysis.Context
	analyzer *analysis.Analyzer
	memory   *store.Store
}

// NewRuntime opens the on-disk database derived from sourcePath (its .amo
// suffix replaced with .db), verifies every declared edb table exists with
// matching arity, stages the whole database into an in-memory working copy,
// and runs type inference. The disk connection is held only long enough to
// verify and copy; evaluation itself runs entirely in memory.
func NewRuntime(sourcePath string, program ast.Program, verbose bool) (*Runtime, error) {
	ctx, err := analysis.NewContext(program)
	if err != nil {
		return nil, fmt.Errorf("building context: %w", err)
	}

	dbPath := dbPathFor(sourcePath)
	disk, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	for name, rule := range ctx.Edbs {
		exists, err := disk.TableExists(name)
		if err != nil {
			disk.Close()
			return nil, fmt.Errorf("checking base table %q: %w", name, err)
		}
		if !exists {
			disk.Close()
			return nil, fmt.Errorf("missing base table %q declared by @input", name)
		}
		arity, err := disk.Arity(name)
		if err != nil {
			disk.Close()
			return nil, fmt.Errorf("introspecting base table %q: %w", name, err)
		}
		if arity != rule.Head.Arity() {
			disk.Close()
			return nil, fmt.Errorf("base table %q has arity %d, rule declares %d", name, arity, rule.Head.Arity())
		}
	}

	memory, err := store.OpenInMemory()
	if err != nil {
		disk.Close()
		return nil, fmt.Errorf("opening in-memory working store: %w", err)
	}
	if err := memory.CopyAllFrom(disk); err != nil {
		disk.Close()
		memory.Close()
		return nil, fmt.Errorf("staging %s into memory: %w", dbPath, err)
	}
	if err := disk.Close(); err != nil {
		memory.Close()
		return nil, fmt.Errorf("closing %s: %w", dbPath, err)
	}

	analyzer, err := analysis.NewAnalyzer(ctx)
	if err != nil {
		memory.Close()
		return nil, fmt.Errorf("running type inference: %w", err)
	}

	if verbose {
		log.Infof("loaded %d edb, %d idb, %d query relations from %s", len(ctx.Edbs), len(ctx.Idbs), len(ctx.Queries), dbPath)
	}

	return &Runtime{dbPath: dbPath, verbose: verbose, context: ctx, analyzer: analyzer, memory: memory}, nil
}

func dbPathFor(sourcePath string) string {
	if strings.HasSuffix(sourcePath, ".amo") {
		return strings.TrimSuffix(sourcePath, ".amo") + ".db"
	}
	return sourcePath + ".db"
}

// Eval runs every stratum from lowest to highest, writes query results, and
// persists the in-memory working store back to the on-disk file. Predicates
// sharing one stratum (mutually recursive idbs) are evaluated in one joint
// fixpoint, not one at a time, since a sequential per-predicate pass would
// not see a sibling's newly derived tuples until too late.
func (r *Runtime) Eval() error {
	defer r.memory.Close()

	for _, names := range r.context.OrderedStrata() {
		if r.verbose {
			log.Infof("evaluating stratum %v (level %d)", names, r.context.Stratum.GetLevel(names[0]))
		}
		if err := r.applyStratum(names); err != nil {
			return fmt.Errorf("evaluating stratum %v: %w", names, err)
		}
	}

	if err := r.writeQueries(); err != nil {
		return err
	}

	disk, err := store.Open(r.dbPath)
	if err != nil {
		return fmt.Errorf("reopening %s to persist results: %w", r.dbPath, err)
	}
	defer disk.Close()
	if err := disk.CopyAllFrom(r.memory); err != nil {
		return fmt.Errorf("persisting results to %s: %w", r.dbPath, err)
	}
	return nil
}

// applyStratum materializes every predicate in names: creates their tables,
// seeds them from base-case rules, then runs one joint semi-naive loop over
// whatever rules (across any of names) are not base cases.
func (r *Runtime) applyStratum(names []string) error {
	evaluated := make(map[string]bool, len(r.context.Edbs)+len(names))
	for edb := range r.context.Edbs {
		evaluated[edb] = true
	}
	for _, level := range r.context.Stratum.Strata[:r.context.Stratum.GetLevel(names[0])] {
		for predicate := range level {
			evaluated[predicate] = true
		}
	}

	for _, name := range names {
		if err := r.memory.CreateTable(name, r.analyzer.DataTypes[name]); err != nil {
			return err
		}
	}

	recursiveRules := make(map[string][]*ast.Rule)
	for _, name := range names {
		for _, rule := range r.context.Idbs[name] {
			if rule.IsBaseCase(evaluated) {
				vd := analysis.NewVarDict(rule)
				sql, err := compileRule(rule, vd, name, nil)
				if err != nil {
					return fmt.Errorf("compiling base rule for %q: %w", name, err)
				}
				if _, err := r.memory.Exec(sql); err != nil {
					return fmt.Errorf("seeding %q: %w", name, err)
				}
			} else {
				recursiveRules[name] = append(recursiveRules[name], rule)
			}
		}
	}

	hasRecursive := false
	for _, rules := range recursiveRules {
		if len(rules) > 0 {
			hasRecursive = true
			break
		}
	}
	if hasRecursive {
		return r.semiNaive(names, recursiveRules)
	}
	return nil
}

// semiNaive runs the delta/temp loop described in the evaluator design over
// every predicate in names jointly: seed each delta with the current
// contents of its relation, repeatedly evaluate every recursive rule of
// every predicate in the group against the whole group's deltas into that
// predicate's temp table, then fold temp \ p back into both p and delta,
// until every delta in the group is empty in the same iteration.
func (r *Runtime) semiNaive(names []string, rulesByName map[string][]*ast.Rule) error {
	deltaNames := make(map[string]bool, len(names))
	for _, name := range names {
		deltaNames[name] = true
	}

	for _, name := range names {
		if err := r.memory.CopyTableAs("delta_"+name, name); err != nil {
			return err
		}
		if err := r.memory.CreateLike("temp_"+name, name); err != nil {
			return err
		}
	}
	defer func() {
		for _, name := range names {
			r.memory.Drop("delta_" + name)
			r.memory.Drop("temp_" + name)
		}
	}()

	for iteration := 1; ; iteration++ {
		for _, name := range names {
			if _, err := r.memory.Exec(fmt.Sprintf("DELETE FROM temp_%s", name)); err != nil {
				return err
			}
		}
		for _, name := range names {
			for _, rule := range rulesByName[name] {
				vd := analysis.NewVarDict(rule)
				sql, err := compileRule(rule, vd, "temp_"+name, deltaNames)
				if err != nil {
					return fmt.Errorf("compiling semi-naive rule for %q: %w", name, err)
				}
				if _, err := r.memory.Exec(sql); err != nil {
					return fmt.Errorf("iterating %q: %w", name, err)
				}
			}
		}

		totalNew := 0
		for _, name := range names {
			if _, err := r.memory.Exec(fmt.Sprintf("DELETE FROM delta_%s", name)); err != nil {
				return err
			}
			antiSemijoin := antiSemijoinInsert("delta_"+name, "temp_"+name, name, r.analyzer.DataTypes[name])
			if _, err := r.memory.Exec(antiSemijoin); err != nil {
				return fmt.Errorf("computing delta for %q: %w", name, err)
			}
			count, err := r.memory.Count("delta_" + name)
			if err != nil {
				return err
			}
			if r.verbose {
				log.Infof("%q iteration %d: %d new tuples", name, iteration, count)
			}
			totalNew += count
		}
		if totalNew == 0 {
			return nil
		}
		for _, name := range names {
			if _, err := r.memory.Exec(fmt.Sprintf("INSERT OR IGNORE INTO %s SELECT * FROM delta_%s", name, name)); err != nil {
				return err
			}
		}
	}
}

// antiSemijoinInsert builds the INSERT ... SELECT that computes temp \ head
// via a LEFT JOIN anti-semijoin on every column, the standard SQL idiom for
// set difference without a dedicated EXCEPT-with-ignore operator.
func antiSemijoinInsert(dest, temp, head string, types []analysis.DataType) string {
	var on, where []string
	for i := range types {
		on = append(on, fmt.Sprintf("tmp.column_%d = h.column_%d", i, i))
		where = append(where, fmt.Sprintf("h.column_%d IS NULL", i))
	}
	return fmt.Sprintf(
		"INSERT INTO %s\nSELECT tmp.* FROM %s AS tmp\nLEFT JOIN %s AS h ON %s\nWHERE %s",
		dest, temp, head, strings.Join(on, " AND "), strings.Join(where, " AND "),
	)
}
