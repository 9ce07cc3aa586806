package tir

type (
	// Expr is an expression node: *Var, IntImm, StringImm, Load or a binary op.
	Expr interface{}

	// Stmt is a statement node.
	Stmt interface{}

	// Var is a variable. Identity is the pointer, the name is a hint only.
	Var struct {
		Name string
	}

	IntImm struct {
		Value int64
	}

	StringImm struct {
		Value string
	}

	Add struct{ L, R Expr }
	Sub struct{ L, R Expr }
	Mul struct{ L, R Expr }
	Div struct{ L, R Expr }
	Mod struct{ L, R Expr }
	LT  struct{ L, R Expr }

	// Load reads one element of a buffer.
	Load struct {
		Buffer *Var
		Index  Expr
	}

	// Type is an element type. Lanes > 1 makes it a vector type.
	Type struct {
		Kind  byte // 'i' or 'f'
		Bits  int
		Lanes int
	}

	// AttrStmt attaches an auxiliary attribute to a node over the body.
	// Node is a handle, not a value use of the variable it may hold.
	AttrStmt struct {
		Node  any
		Key   string
		Value Expr
		Body  Stmt
	}

	Allocate struct {
		Buffer  *Var
		Elem    Type
		Extents []Expr
		Cond    Expr
		Body    Stmt
	}

	// For runs Body for Var in [Min, Min+Extent).
	For struct {
		Var    *Var
		Min    Expr
		Extent Expr
		Body   Stmt
	}

	// Store writes one element of a buffer.
	Store struct {
		Buffer *Var
		Value  Expr
		Index  Expr
	}

	IfThenElse struct {
		Cond Expr
		Then Stmt
		Else Stmt
	}

	SeqStmt []Stmt

	Evaluate struct {
		Value Expr
	}
)

// Attribute keys understood by the lowering passes.
const (
	AttrStorageScope      = "storage_scope"
	AttrDoubleBufferScope = "double_buffer_scope"
	AttrDoubleBufferWrite = "double_buffer_write"
)

var (
	Int32   = Type{Kind: 'i', Bits: 32, Lanes: 1}
	Float32 = Type{Kind: 'f', Bits: 32, Lanes: 1}
)

func Int(v int64) IntImm { return IntImm{Value: v} }

func IsZero(e Expr) bool {
	x, ok := e.(IntImm)

	return ok && x.Value == 0
}

func IsOne(e Expr) bool {
	x, ok := e.(IntImm)

	return ok && x.Value == 1
}

// Nop is a statement with no effect, used as a placeholder body.
func Nop() Stmt { return &Evaluate{Value: Int(0)} }
