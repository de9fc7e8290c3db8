package engine

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dune-Z/Seminaive-Datalog/ast"
)

var defaultQueryWriter queryWriter = os.Stdout

// writeQueries executes every @output rule and prints its result set to
// stdout.
func (r *Runtime) writeQueries() error {
	for name, rule := range r.context.Queries {
		if err := r.writeQuery(name, rule, defaultQueryWriter); err != nil {
			return err
		}
	}
	return nil
}

// queryWriter lets tests redirect query output; production uses os.Stdout.
type queryWriter = io.Writer

func (r *Runtime) writeQuery(name string, rule *ast.Rule, w queryWriter) error {
	exists, err := r.memory.TableExists(name)
	if err != nil {
		return fmt.Errorf("checking query table %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("query predicate %q is not materialized", name)
	}

	sqlText := compileQuery(name, rule)
	rows, err := r.memory.Query(sqlText)
	if err != nil {
		return fmt.Errorf("executing query %q: %w", name, err)
	}
	defer rows.Close()

	values, err := scanAll(rows, rule.Head.Arity())
	if err != nil {
		return fmt.Errorf("reading query %q results: %w", name, err)
	}

	fmt.Fprintf(w, "QUERY: %s\n", rule.Head.String())
	printElided(w, values)
	fmt.Fprintf(w, "COUNT: %d\n", len(values))
	return nil
}

// compileQuery builds the SELECT for a query rule: a constant conjunct for
// every literal head position, and an equality conjunct between the first
// occurrence of a repeated head variable and each later occurrence.
func compileQuery(name string, rule *ast.Rule) string {
	var where []string
	firstIndex := make(map[string]int)
	for i, term := range rule.Head.Terms {
		switch t := term.(type) {
		case ast.Constant:
			where = append(where, fmt.Sprintf("column_%d = %s", i, t.SQLLiteral()))
		case ast.Variable:
			if t.Kind == ast.VarFree {
				continue
			}
			if first, seen := firstIndex[t.Name]; seen {
				where = append(where, fmt.Sprintf("column_%d = column_%d", first, i))
			} else {
				firstIndex[t.Name] = i
			}
		}
	}
	sqlText := fmt.Sprintf("SELECT * FROM %s", name)
	if len(where) > 0 {
		sqlText += "\nWHERE " + strings.Join(where, " AND ")
	}
	return sqlText
}

func scanAll(rows *sql.Rows, arity int) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		dest := make([]any, arity)
		ptrs := make([]any, arity)
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}

// printElided prints one row per line, comma-space separated, eliding the
// middle when there are more than 20 rows (first 10, "...", last 10).
func printElided(w queryWriter, rows [][]any) {
	print := func(row []any) {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(parts, ", "))
	}
	if len(rows) <= 20 {
		for _, row := range rows {
			print(row)
		}
		return
	}
	for _, row := range rows[:10] {
		print(row)
	}
	fmt.Fprintln(w, "...")
	for _, row := range rows[len(rows)-10:] {
		print(row)
	}
}
