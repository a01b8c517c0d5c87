// Package plan содержит таблицу тарифных планов и подбор плана по сумме вклада.
package plan

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

// ErrNoPlan возвращается, если сумма не попадает ни в один тарифный план.
var ErrNoPlan = errors.New("no plan matches amount")

// ErrInvalidTable возвращается при загрузке некорректной таблицы планов.
var ErrInvalidTable = errors.New("invalid plan table")

// Plan описывает тарифный план: диапазон сумм [Min, Max) и недельную доходность в процентах.
// Нулевой Max означает отсутствие верхней границы.
type Plan struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Min        decimal.Decimal `json:"min_amount"`
	Max        decimal.Decimal `json:"max_amount"`
	WeeklyRate decimal.Decimal `json:"weekly_rate"`
}

// Unbounded сообщает, что у плана нет верхней границы суммы.
func (p Plan) Unbounded() bool {
	return p.Max.IsZero()
}

// Contains сообщает, попадает ли сумма в диапазон плана.
func (p Plan) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(p.Min) {
		return false
	}
	return p.Unbounded() || amount.LessThan(p.Max)
}

// Table хранит неизменяемую упорядоченную таблицу планов.
type Table struct {
	plans []Plan
	byID  map[string]Plan
}

type fileFormat struct {
	Plans []struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		Min        string `yaml:"min"`
		Max        string `yaml:"max"`
		WeeklyRate string `yaml:"weekly_rate"`
	} `yaml:"plans"`
}

// Default возвращает встроенную таблицу планов.
func Default() (*Table, error) {
	return Parse(defaultPlans)
}

// Load читает таблицу планов из YAML-файла. Пустой путь означает встроенную таблицу.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}

	return Parse(data)
}

// Parse разбирает YAML-описание планов и проверяет, что диапазоны не пересекаются и идут без разрывов.
func Parse(data []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}

	plans := make([]Plan, 0, len(f.Plans))
	for _, raw := range f.Plans {
		p := Plan{ID: raw.ID, Name: raw.Name}

		var err error
		if p.Min, err = decimal.NewFromString(raw.Min); err != nil {
			return nil, fmt.Errorf("%w: plan %q min: %v", ErrInvalidTable, raw.ID, err)
		}
		if raw.Max != "" {
			if p.Max, err = decimal.NewFromString(raw.Max); err != nil {
				return nil, fmt.Errorf("%w: plan %q max: %v", ErrInvalidTable, raw.ID, err)
			}
		}
		if p.WeeklyRate, err = decimal.NewFromString(raw.WeeklyRate); err != nil {
			return nil, fmt.Errorf("%w: plan %q rate: %v", ErrInvalidTable, raw.ID, err)
		}

		plans = append(plans, p)
	}

	return NewTable(plans)
}

// NewTable проверяет набор планов и строит из него таблицу.
// Планы должны идти по возрастанию, каждый следующий начинаться там, где закончился предыдущий,
// а план без верхней границы может быть только последним.
func NewTable(plans []Plan) (*Table, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTable)
	}

	byID := make(map[string]Plan, len(plans))
	for i, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: plan #%d has no id", ErrInvalidTable, i)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidTable, p.ID)
		}
		if p.Min.IsNegative() || !p.WeeklyRate.IsPositive() {
			return nil, fmt.Errorf("%w: plan %q has negative bound or non-positive rate", ErrInvalidTable, p.ID)
		}
		if !p.Unbounded() && !p.Max.GreaterThan(p.Min) {
			return nil, fmt.Errorf("%w: plan %q max must exceed min", ErrInvalidTable, p.ID)
		}
		if p.Unbounded() && i != len(plans)-1 {
			return nil, fmt.Errorf("%w: unbounded plan %q must be last", ErrInvalidTable, p.ID)
		}
		if i > 0 && !plans[i-1].Max.Equal(p.Min) {
			return nil, fmt.Errorf("%w: plan %q does not start where %q ends", ErrInvalidTable, p.ID, plans[i-1].ID)
		}

		byID[p.ID] = p
	}

	return &Table{
		plans: append([]Plan(nil), plans...),
		byID:  byID,
	}, nil
}

// Resolve возвращает план, в диапазон которого попадает сумма.
func (t *Table) Resolve(amount decimal.Decimal) (Plan, error) {
	for _, p := range t.plans {
		if p.Contains(amount) {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %s", ErrNoPlan, amount.String())
}

// ByID возвращает план по идентификатору.
func (t *Table) ByID(id string) (Plan, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// All возвращает копию всех планов по возрастанию сумм.
func (t *Table) All() []Plan {
	return append([]Plan(nil), t.plans...)
}
