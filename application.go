package fogsim

// application.go holds the logical stream-processing application: modules, the
// typed edges that connect them to each other and to sensors and actuators, the
// tuple mappings that say what a module emits for what it receives, and the loops
// whose end-to-end latency is measured.
//
// An Application is assembled with AddModule, AddEdge, AddTupleMapping and SetLoops,
// then checked with Validate.  Validate gathers every problem it finds into one
// ValidationError, and on success builds the lookup tables used at run time.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// AppModule is a logical compute unit; Size is the RAM (MB) an instance holds
type AppModule struct {
	Name  string
	Size  int
	index int
}

// AppEdge is a typed directed connection between application endpoints
type AppEdge struct {
	Src           string
	Dst           string
	CPULength     float64
	NwLength      float64
	TupleType     string
	Direction     Direction
	Kind          EdgeKind
	PeriodicityMs float64 // > 0 marks an edge the source emits on by itself, once per period
	typeID        TupleTypeID
	index         int
}

// Periodic reports whether the source emits on the edge on a timer
func (edge *AppEdge) Periodic() bool {
	return edge.PeriodicityMs > 0
}

// TypeID is the interned tuple type of the edge
func (edge *AppEdge) TypeID() TupleTypeID {
	return edge.typeID
}

// TupleMapping says that Module emits OutputType for a fraction Selectivity of
// the InputType tuples it receives
type TupleMapping struct {
	Module      string
	InputType   string
	OutputType  string
	Selectivity float64
	inID        TupleTypeID
	outID       TupleTypeID
	index       int
}

// AppLoop is an ordered sequence of endpoints whose traversal latency is measured.
// All but possibly the last name modules; the last may name an actuator type.
type AppLoop struct {
	ID      int
	Modules []string
}

// Head is the module whose emission starts the measurement
func (al *AppLoop) Head() string {
	return al.Modules[0]
}

// Tail is the endpoint whose completion ends the measurement
func (al *AppLoop) Tail() string {
	return al.Modules[len(al.Modules)-1]
}

// Name is a printable label for the loop
func (al *AppLoop) Name() string {
	return strings.Join(al.Modules, "->")
}

// Application is the stream graph of one application
type Application struct {
	Name   string
	UserID int

	modules       []*AppModule
	moduleIdx     map[string]*AppModule
	edges         []*AppEdge
	mappings      []*TupleMapping
	loops         []*AppLoop
	types         *TupleTypeTable
	sensorTypes   []string
	actuatorTypes []string

	// problems found while assembling, reported by Validate
	pending ValidationError

	validated    bool
	order        []string
	edgeBySrc    map[string]map[string]*AppEdge
	outEdges     map[string][]*AppEdge
	inEdges      map[string][]*AppEdge
	mappingsByIn map[string]map[TupleTypeID][]*TupleMapping
}

// CreateApplication is a constructor
func CreateApplication(name string, userID int) *Application {
	app := new(Application)
	app.Name = name
	app.UserID = userID
	app.modules = make([]*AppModule, 0)
	app.moduleIdx = make(map[string]*AppModule)
	app.edges = make([]*AppEdge, 0)
	app.mappings = make([]*TupleMapping, 0)
	app.loops = make([]*AppLoop, 0)
	app.types = CreateTupleTypeTable()
	app.sensorTypes = make([]string, 0)
	app.actuatorTypes = make([]string, 0)
	return app
}

// AddModule declares a module with the given RAM size
func (app *Application) AddModule(name string, size int) {
	app.validated = false
	if _, present := app.moduleIdx[name]; present {
		app.pending.add("duplicate module name %q", name)
		return
	}
	mod := &AppModule{Name: name, Size: size, index: len(app.modules)}
	app.modules = append(app.modules, mod)
	app.moduleIdx[name] = mod
}

// DeclareSensorType makes a sensor tuple type a legal source of SENSOR edges
func (app *Application) DeclareSensorType(tag string) {
	if !slices.Contains(app.sensorTypes, tag) {
		app.sensorTypes = append(app.sensorTypes, tag)
		app.types.Intern(tag)
	}
}

// DeclareActuatorType makes an actuator type a legal destination of ACTUATOR edges
func (app *Application) DeclareActuatorType(tag string) {
	if !slices.Contains(app.actuatorTypes, tag) {
		app.actuatorTypes = append(app.actuatorTypes, tag)
	}
}

// AddEdge declares an edge from src to dst carrying tuples of tupleType
func (app *Application) AddEdge(src, dst string, cpuLen, nwLen float64, tupleType string,
	dir Direction, kind EdgeKind) *AppEdge {
	return app.AddPeriodicEdge(src, dst, 0, cpuLen, nwLen, tupleType, dir, kind)
}

// AddPeriodicEdge declares an edge on which src emits every periodMs milliseconds,
// independent of what it receives.  A period of zero declares an ordinary edge.
func (app *Application) AddPeriodicEdge(src, dst string, periodMs, cpuLen, nwLen float64, tupleType string,
	dir Direction, kind EdgeKind) *AppEdge {
	app.validated = false
	edge := &AppEdge{Src: src, Dst: dst, CPULength: cpuLen, NwLength: nwLen, TupleType: tupleType,
		Direction: dir, Kind: kind, PeriodicityMs: periodMs, typeID: app.types.Intern(tupleType),
		index: len(app.edges)}
	app.edges = append(app.edges, edge)
	return edge
}

// AddTupleMapping records that module emits outType for a fraction s of the inType tuples it receives
func (app *Application) AddTupleMapping(module, inType, outType string, s float64) {
	app.validated = false
	tm := &TupleMapping{Module: module, InputType: inType, OutputType: outType, Selectivity: s,
		inID: app.types.Intern(inType), outID: app.types.Intern(outType),
		index: len(app.mappings)}
	app.mappings = append(app.mappings, tm)
}

// SetLoops replaces the measured loops
func (app *Application) SetLoops(loops [][]string) {
	app.validated = false
	app.loops = make([]*AppLoop, 0, len(loops))
	for idx, loop := range loops {
		mods := make([]string, len(loop))
		copy(mods, loop)
		app.loops = append(app.loops, &AppLoop{ID: idx, Modules: mods})
	}
}

// Validate checks the application and builds its run-time lookup tables
func (app *Application) Validate() error {
	ve := new(ValidationError)
	ve.Problems = append(ve.Problems, app.pending.Problems...)

	for _, mod := range app.modules {
		if mod.Size < 0 {
			ve.add("module %q has negative size %d", mod.Name, mod.Size)
		}
	}

	edgeBySrc := make(map[string]map[string]*AppEdge)
	for _, edge := range app.edges {
		app.checkEdge(ve, edge)
		_, present := edgeBySrc[edge.Src]
		if !present {
			edgeBySrc[edge.Src] = make(map[string]*AppEdge)
		}
		if _, dup := edgeBySrc[edge.Src][edge.TupleType]; dup {
			ve.add("more than one edge from %q carries tuple type %q", edge.Src, edge.TupleType)
			continue
		}
		edgeBySrc[edge.Src][edge.TupleType] = edge
	}

	for _, tm := range app.mappings {
		if _, present := app.moduleIdx[tm.Module]; !present {
			ve.add("tuple mapping names undeclared module %q", tm.Module)
			continue
		}
		if !(tm.Selectivity >= 0 && tm.Selectivity <= 1) {
			ve.add("selectivity %g of %s %s->%s lies outside [0,1]", tm.Selectivity, tm.Module, tm.InputType, tm.OutputType)
		}
		if _, present := edgeBySrc[tm.Module][tm.OutputType]; !present {
			ve.add("module %q maps to %q but has no outgoing edge of that type", tm.Module, tm.OutputType)
		}
		arrives := false
		for _, edge := range app.edges {
			if edge.Dst == tm.Module && edge.TupleType == tm.InputType {
				arrives = true
				break
			}
		}
		if !arrives {
			ve.add("module %q maps input %q that no edge delivers to it", tm.Module, tm.InputType)
		}
	}

	for _, loop := range app.loops {
		if len(loop.Modules) < 2 {
			ve.add("loop %d needs at least two members", loop.ID)
			continue
		}
		for idx, name := range loop.Modules {
			_, isModule := app.moduleIdx[name]
			lastActuator := idx == len(loop.Modules)-1 && slices.Contains(app.actuatorTypes, name)
			if !isModule && !lastActuator {
				ve.add("loop %s names undeclared module %q", loop.Name(), name)
			}
		}
	}

	if len(ve.Problems) == 0 {
		app.checkCycles(ve)
	}
	if err := ve.errOrNil(); err != nil {
		return err
	}

	app.buildIndexes(edgeBySrc)
	app.validated = true
	return nil
}

// checkEdge reports problems with the endpoints and lengths of one edge
func (app *Application) checkEdge(ve *ValidationError, edge *AppEdge) {
	_, srcModule := app.moduleIdx[edge.Src]
	_, dstModule := app.moduleIdx[edge.Dst]

	switch edge.Kind {
	case SensorEdge:
		if !slices.Contains(app.sensorTypes, edge.Src) {
			ve.add("sensor edge source %q is not a declared sensor type", edge.Src)
		}
		if !dstModule {
			ve.add("edge %s->%s names undeclared module %q", edge.Src, edge.Dst, edge.Dst)
		}
	case ModuleEdge:
		if !srcModule {
			ve.add("edge %s->%s names undeclared module %q", edge.Src, edge.Dst, edge.Src)
		}
		if !dstModule {
			ve.add("edge %s->%s names undeclared module %q", edge.Src, edge.Dst, edge.Dst)
		}
	case ActuatorEdge:
		if !srcModule {
			ve.add("edge %s->%s names undeclared module %q", edge.Src, edge.Dst, edge.Src)
		}
		if !slices.Contains(app.actuatorTypes, edge.Dst) {
			ve.add("actuator edge destination %q is not a declared actuator type", edge.Dst)
		}
	}

	if edge.CPULength < 0 || edge.NwLength < 0 {
		ve.add("edge %s->%s has negative length", edge.Src, edge.Dst)
	}
	if edge.PeriodicityMs < 0 {
		ve.add("edge %s->%s has negative period", edge.Src, edge.Dst)
	}
	if edge.Periodic() && edge.Kind == SensorEdge {
		ve.add("sensor edge %s->%s cannot be periodic", edge.Src, edge.Dst)
	}
}

// loopCovers reports whether some declared loop contains every module named
func (app *Application) loopCovers(names []string) bool {
	for _, loop := range app.loops {
		covered := true
		for _, name := range names {
			if !slices.Contains(loop.Modules, name) {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

// closesLoop reports whether the module edge returns to the head of a declared loop
// from inside it.  Such edges are left out of the ordering graph.
func (app *Application) closesLoop(edge *AppEdge) bool {
	for _, loop := range app.loops {
		if edge.Dst == loop.Head() && slices.Contains(loop.Modules, edge.Src) {
			return true
		}
	}
	return false
}

// checkCycles rejects cycles of modules that no declared loop covers, and requires
// that what remains once loops are closed can be ordered
func (app *Application) checkCycles(ve *ValidationError) {
	full := simple.NewDirectedGraph()
	ordering := simple.NewDirectedGraph()
	for _, mod := range app.modules {
		full.AddNode(simple.Node(mod.index))
		ordering.AddNode(simple.Node(mod.index))
	}

	for _, edge := range app.edges {
		if edge.Kind != ModuleEdge {
			continue
		}
		from := app.moduleIdx[edge.Src].index
		to := app.moduleIdx[edge.Dst].index
		if from == to {
			if !app.loopCovers([]string{edge.Src}) {
				ve.add("module %q feeds itself outside any declared loop", edge.Src)
			}
			continue
		}
		full.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		if !app.closesLoop(edge) {
			ordering.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}

	for _, scc := range topo.TarjanSCC(full) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, 0, len(scc))
		for _, node := range scc {
			names = append(names, app.modules[node.ID()].Name)
		}
		slices.Sort(names)
		if !app.loopCovers(names) {
			ve.add("cycle among modules %s is not covered by a declared loop", strings.Join(names, ","))
		}
	}

	if len(ve.Problems) > 0 {
		return
	}
	if _, err := topo.Sort(ordering); err != nil {
		ve.add("module graph cannot be ordered once declared loops are closed: %v", err)
	}
}

// buildIndexes prepares the lookup tables used once the application is valid
func (app *Application) buildIndexes(edgeBySrc map[string]map[string]*AppEdge) {
	app.edgeBySrc = edgeBySrc
	app.outEdges = make(map[string][]*AppEdge)
	app.inEdges = make(map[string][]*AppEdge)
	for _, edge := range app.edges {
		app.outEdges[edge.Src] = append(app.outEdges[edge.Src], edge)
		app.inEdges[edge.Dst] = append(app.inEdges[edge.Dst], edge)
	}

	app.mappingsByIn = make(map[string]map[TupleTypeID][]*TupleMapping)
	for _, tm := range app.mappings {
		if _, present := app.mappingsByIn[tm.Module]; !present {
			app.mappingsByIn[tm.Module] = make(map[TupleTypeID][]*TupleMapping)
		}
		app.mappingsByIn[tm.Module][tm.inID] = append(app.mappingsByIn[tm.Module][tm.inID], tm)
	}
	app.order = app.kahnOrder()
}

// kahnOrder sorts the modules so that every module follows its producers, choosing
// among ready modules the one declared first
func (app *Application) kahnOrder() []string {
	inDegree := make([]int, len(app.modules))
	succ := make([][]int, len(app.modules))
	for _, edge := range app.edges {
		if edge.Kind != ModuleEdge || edge.Src == edge.Dst || app.closesLoop(edge) {
			continue
		}
		from := app.moduleIdx[edge.Src].index
		to := app.moduleIdx[edge.Dst].index
		if slices.Contains(succ[from], to) {
			continue
		}
		succ[from] = append(succ[from], to)
		inDegree[to] += 1
	}

	order := make([]string, 0, len(app.modules))
	done := make([]bool, len(app.modules))
	for len(order) < len(app.modules) {
		nxt := -1
		for idx := range app.modules {
			if !done[idx] && inDegree[idx] == 0 {
				nxt = idx
				break
			}
		}
		if nxt == -1 {
			// unreachable once checkCycles has passed
			panic(fmt.Errorf("application %s: module graph is not ordered", app.Name))
		}
		done[nxt] = true
		order = append(order, app.modules[nxt].Name)
		for _, to := range succ[nxt] {
			inDegree[to] -= 1
		}
	}
	return order
}

// TopologicalOrder is the order in which modules are placed: producers before
// consumers, ties broken by declaration order
func (app *Application) TopologicalOrder() []string {
	return app.order
}

// Validated reports whether Validate succeeded since the last change
func (app *Application) Validated() bool {
	return app.validated
}

// Module finds a module by name
func (app *Application) Module(name string) (*AppModule, bool) {
	mod, present := app.moduleIdx[name]
	return mod, present
}

// Modules lists the modules in declaration order
func (app *Application) Modules() []*AppModule {
	return app.modules
}

// Edges lists the edges in declaration order
func (app *Application) Edges() []*AppEdge {
	return app.edges
}

// Mappings lists the tuple mappings in declaration order
func (app *Application) Mappings() []*TupleMapping {
	return app.mappings
}

// Loops lists the measured loops
func (app *Application) Loops() []*AppLoop {
	return app.loops
}

// Types is the application's tuple type table
func (app *Application) Types() *TupleTypeTable {
	return app.types
}

// SensorTypes lists the declared sensor tuple types
func (app *Application) SensorTypes() []string {
	return app.sensorTypes
}

// ActuatorTypes lists the declared actuator types
func (app *Application) ActuatorTypes() []string {
	return app.actuatorTypes
}

// EdgeFor finds the unique edge leaving src with the given tuple type
func (app *Application) EdgeFor(src, tupleType string) (*AppEdge, bool) {
	edge, present := app.edgeBySrc[src][tupleType]
	return edge, present
}

// OutEdges lists the edges leaving the named endpoint
func (app *Application) OutEdges(name string) []*AppEdge {
	return app.outEdges[name]
}

// InEdges lists the edges arriving at the named endpoint
func (app *Application) InEdges(name string) []*AppEdge {
	return app.inEdges[name]
}

// MappingsFor lists the mappings the module applies to an input type
func (app *Application) MappingsFor(module string, inType TupleTypeID) []*TupleMapping {
	return app.mappingsByIn[module][inType]
}
