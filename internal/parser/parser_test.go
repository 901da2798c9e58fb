package parser

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/metadata"
)

const nestedFilter = `<filter>
  <and name="root">
    <c name="name" locCaption="Customer name" operatorType="CONTAINS" type="PROPERTY">{E}.name like :component$filter.name1<param name="component$filter.name1" javaClass="java.lang.String">%acme%</param></c>
    <or>
      <c name="amountGt" type="PROPERTY" operatorType="GREATER">{E}.amount &gt; :component$filter.amount2</c>
      <c name="orders" type="PROPERTY" join="join {E}.orders o">o.number = :component$filter.number3</c>
    </or>
    <c name="custom" type="CUSTOM"><join>join {E}.orders o2</join>o2.total &gt; :custom$total and o2.total &lt; :custom$total</c>
  </and>
</filter>`

func mustRoot(t *testing.T, document string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(document); err != nil {
		t.Fatalf("failed to read document: %v", err)
	}
	return doc.Root()
}

func mustParse(t *testing.T, document string, opts ...Option) condition.Condition {
	t.Helper()
	p, err := New(mustRoot(t, document), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cond, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cond
}

func TestParse_SingleClause(t *testing.T) {
	tests := []struct {
		name     string
		document string
		text     string
		join     string
	}{
		{
			name:     "no join",
			document: `<filter><c name="a">{E}.name = :a</c></filter>`,
			text:     "{E}.name = :a",
		},
		{
			name:     "nested join",
			document: `<filter><c name="a" join="join {E}.legacy l"><join>join {E}.orders o</join>o.id = :a</c></filter>`,
			text:     "o.id = :a",
			join:     "join {E}.orders o",
		},
		{
			name:     "legacy join attribute",
			document: `<filter><c name="a" join="join {E}.orders o">o.id = :a</c></filter>`,
			text:     "o.id = :a",
			join:     "join {E}.orders o",
		},
		{
			name:     "cdata text",
			document: `<filter><c name="a"><![CDATA[{E}.amount < :a]]></c></filter>`,
			text:     "{E}.amount < :a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := mustParse(t, tt.document)
			clause, ok := cond.(*condition.Clause)
			if !ok {
				t.Fatalf("expected clause root, got %T", cond)
			}
			if clause.Text != tt.text {
				t.Errorf("Text = %q, want %q", clause.Text, tt.text)
			}
			if clause.Join != tt.join {
				t.Errorf("Join = %q, want %q", clause.Join, tt.join)
			}
			if clause.ID != "0" {
				t.Errorf("ID = %q, want 0", clause.ID)
			}
		})
	}
}

func TestParse_NestedPreservesOrder(t *testing.T) {
	cond := mustParse(t, nestedFilter)

	root, ok := cond.(*condition.LogicalCondition)
	if !ok {
		t.Fatalf("expected logical root, got %T", cond)
	}
	if root.Operation != condition.OpAnd || root.Name != "root" {
		t.Errorf("unexpected root %s %q", root.Operation, root.Name)
	}
	if len(root.Conditions) != 3 {
		t.Fatalf("expected 3 children, got %d", len(root.Conditions))
	}

	first, ok := root.Conditions[0].(*condition.Clause)
	if !ok {
		t.Fatalf("expected first child to be a clause, got %T", root.Conditions[0])
	}
	if first.Name != "Customer name" {
		t.Errorf("expected caption to win over name, got %q", first.Name)
	}
	if first.Labels != (condition.Labels{Name: "name", LocCaption: "Customer name"}) {
		t.Errorf("unexpected labels %+v", first.Labels)
	}
	if first.OperatorType != "CONTAINS" || first.ValueType != "PROPERTY" {
		t.Errorf("unexpected operator/value type %q/%q", first.OperatorType, first.ValueType)
	}

	group, ok := root.Conditions[1].(*condition.LogicalCondition)
	if !ok || group.Operation != condition.OpOr {
		t.Fatalf("expected OR group second, got %#v", root.Conditions[1])
	}
	if len(group.Conditions) != 2 {
		t.Fatalf("expected 2 children in OR group, got %d", len(group.Conditions))
	}
	if group.Conditions[0].DisplayName() != "amountGt" || group.Conditions[1].DisplayName() != "orders" {
		t.Errorf("OR children out of order: %s, %s", group.Conditions[0].DisplayName(), group.Conditions[1].DisplayName())
	}
	if group.Conditions[1].NodeID() != "0.1.1" {
		t.Errorf("expected structural id 0.1.1, got %s", group.Conditions[1].NodeID())
	}

	custom := root.Conditions[2].(*condition.Clause)
	if custom.Join != "join {E}.orders o2" {
		t.Errorf("unexpected join %q", custom.Join)
	}
	if custom.Text != "o2.total > :custom$total and o2.total < :custom$total" {
		t.Errorf("unexpected text %q", custom.Text)
	}
	if custom.Parameters.Len() != 1 {
		t.Errorf("expected repeated placeholder to yield one parameter, got %v", custom.Parameters.Names())
	}
}

func TestParse_Idempotent(t *testing.T) {
	p, err := New(mustRoot(t, nestedFilter))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	a, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b, err := p.Parse()
	if err != nil {
		t.Fatalf("second Parse failed: %v", err)
	}
	if !condition.Equal(a, b) {
		t.Error("expected repeated parses to be equal")
	}
	if a == b {
		t.Error("expected independent trees")
	}

	c := mustParse(t, nestedFilter)
	if !condition.Equal(a, c) {
		t.Error("expected parses of the same document to be equal")
	}
}

func TestParse_TextParameterIsUntyped(t *testing.T) {
	clause := mustParse(t, `<filter><c name="foo">foo = :bar</c></filter>`).(*condition.Clause)

	if clause.Parameters.Len() != 1 {
		t.Fatalf("expected exactly one parameter, got %v", clause.Parameters.Names())
	}
	p, ok := clause.Parameters.Get(condition.ParameterKey{Name: "bar", ClauseID: "0"})
	if !ok {
		t.Fatal("expected parameter bar")
	}
	if p.JavaClass != nil {
		t.Errorf("expected no java class, got %v", p.JavaClass)
	}
	if p.ConditionName != "foo" {
		t.Errorf("expected owning clause foo, got %q", p.ConditionName)
	}
}

func TestParse_UnaryDeclaredParameter(t *testing.T) {
	clause := mustParse(t, `<filter><c name="foo" unary="true">foo is null<param name="bar" javaClass="java.lang.String"/></c></filter>`).(*condition.Clause)

	if !clause.Unary {
		t.Error("expected unary clause")
	}
	if clause.Parameters.Len() != 1 {
		t.Fatalf("expected one parameter, got %v", clause.Parameters.Names())
	}
	p, _ := clause.Parameters.Lookup("bar")
	if p.JavaClass != reflect.TypeOf("") {
		t.Errorf("expected string class, got %v", p.JavaClass)
	}
}

func TestParse_UnknownJavaClassIsSoftFail(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cond, err := ParseString(`<filter><c name="foo">foo = :bar<param name="bar" javaClass="com.example.NoSuchClass">7</param></c></filter>`,
		WithLogger(logger))
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	p, ok := cond.(*condition.Clause).Parameters.Lookup("bar")
	if !ok {
		t.Fatal("expected parameter bar")
	}
	if p.JavaClass != nil {
		t.Errorf("expected unresolved class to leave parameter untyped, got %v", p.JavaClass)
	}
	if p.Value != "7" {
		t.Errorf("expected literal value to be kept, got %q", p.Value)
	}
	if !strings.Contains(buf.String(), "NoSuchClass") {
		t.Error("expected soft-fail to be logged at debug level")
	}
}

func TestParse_DeclaredMergesWithText(t *testing.T) {
	clause := mustParse(t, `<filter><c name="amount">{E}.amount &gt; :amount<param name="amount" javaClass="java.math.BigDecimal">10.5</param><param name="extra">x</param></c></filter>`).(*condition.Clause)

	if names := clause.Parameters.Names(); !reflect.DeepEqual(names, []string{"amount", "extra"}) {
		t.Fatalf("unexpected parameters %v", names)
	}
	amount, _ := clause.Parameters.Lookup("amount")
	if amount.JavaClass == nil || amount.JavaClass.String() != "decimal.Decimal" {
		t.Errorf("expected decimal class, got %v", amount.JavaClass)
	}
	if amount.Value != "10.5" {
		t.Errorf("expected value 10.5, got %q", amount.Value)
	}
}

func TestNew_EmptyFilter(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptyFilter) {
		t.Errorf("expected ErrEmptyFilter for nil root, got %v", err)
	}

	for _, document := range []string{`<filter/>`, `<filter>   </filter>`, `<filter>text only</filter>`} {
		p, err := New(mustRoot(t, document))
		if !errors.Is(err, ErrEmptyFilter) {
			t.Errorf("New(%s) error = %v, want ErrEmptyFilter", document, err)
		}
		if p != nil {
			t.Errorf("New(%s) returned a parser", document)
		}
	}

	if _, err := ParseString(``); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := ParseString(`<filter><xor><c>a</c></xor></filter>`); err == nil {
		t.Error("expected error for unknown logical operation")
	}
	if _, err := ParseString(`<filter><and <c/></filter>`); err == nil {
		t.Error("expected error for malformed document")
	}

	deep := `<filter>` + strings.Repeat("<and>", 4) + `<c>x</c>` + strings.Repeat("</and>", 4) + `</filter>`
	if _, err := ParseString(deep, WithMaxDepth(3)); !errors.Is(err, ErrMaxDepth) {
		t.Errorf("expected ErrMaxDepth, got %v", err)
	}
	if _, err := ParseString(deep, WithMaxDepth(5)); err != nil {
		t.Errorf("expected depth 5 to be accepted, got %v", err)
	}
}

func TestParse_EmptyGroupAllowed(t *testing.T) {
	cond := mustParse(t, `<filter><or name="nothing"/></filter>`)
	group, ok := cond.(*condition.LogicalCondition)
	if !ok {
		t.Fatalf("expected logical root, got %T", cond)
	}
	if !group.IsVacuous() {
		t.Error("expected vacuous group")
	}
}

type testCustomer struct {
	ID     uint        `json:"id" filter:"key"`
	Name   string      `json:"name"`
	Orders []testOrder `json:"orders" gorm:"foreignKey:CustomerID"`
}

type testOrder struct {
	ID         uint   `json:"id" filter:"key"`
	CustomerID uint   `json:"customerId"`
	Number     string `json:"number"`
}

func TestParse_AnnotatesProperties(t *testing.T) {
	model := metadata.NewModel()
	customer, err := model.Register(&testCustomer{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := model.Register(&testOrder{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	document := `<filter><and>
		<c name="name">{E}.name = :name</c>
		<c name="orders">{E}.orders.number = :number or {E}.missing = :number</c>
	</and></filter>`

	root := mustParse(t, document, WithModel(model, customer)).(*condition.LogicalCondition)

	name := root.Conditions[0].(*condition.Clause)
	if len(name.Properties) != 1 || !name.Properties[0].Resolved || name.Properties[0].Kind != metadata.KindScalar {
		t.Errorf("unexpected properties %+v", name.Properties)
	}

	orders := root.Conditions[1].(*condition.Clause)
	if len(orders.Properties) != 2 {
		t.Fatalf("expected 2 property refs, got %+v", orders.Properties)
	}
	if orders.Properties[0].Path != "orders.number" || !orders.Properties[0].Resolved {
		t.Errorf("unexpected first ref %+v", orders.Properties[0])
	}
	if orders.Properties[1].Path != "missing" || orders.Properties[1].Resolved {
		t.Errorf("unexpected second ref %+v", orders.Properties[1])
	}

	// Without a model nothing is annotated.
	plain := mustParse(t, document).(*condition.LogicalCondition)
	if props := plain.Conditions[0].(*condition.Clause).Properties; props != nil {
		t.Errorf("expected no annotation without a model, got %+v", props)
	}
}

func TestPropertyPaths(t *testing.T) {
	got := PropertyPaths("{E}.a.b = :x and {E}.c. is null or {E}.a.b <> {E}.d")
	expected := []string{"a.b", "c", "d"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("PropertyPaths = %v, want %v", got, expected)
	}
}
