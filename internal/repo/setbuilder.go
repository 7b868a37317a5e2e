package repo

import (
	"fmt"
	"strings"
)

// setBuilder собирает UPDATE ... SET для частичного обновления
type setBuilder struct {
	cols []string
	args []any
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

// query appends the id as the last argument.
func (b *setBuilder) query(table, id string) string {
	b.args = append(b.args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(b.cols, ", "), len(b.args))
}

// queryOwned is query restricted to rows of one user.
func (b *setBuilder) queryOwned(table, id, userID string) string {
	b.args = append(b.args, id, userID)
	n := len(b.args)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND user_id = $%d", table, strings.Join(b.cols, ", "), n-1, n)
}
