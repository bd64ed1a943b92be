package vm

import (
	"github.com/dustin/go-humanize"

	"github.com/chazu/loomscript/binmod"
	"github.com/chazu/loomscript/reflection"
)

// LoadPhase is the state of the assembly loader.
type LoadPhase int

const (
	PhaseIdle LoadPhase = iota
	PhaseLoading
	PhaseCached
	PhaseValidated
	PhaseFinalized
)

var phaseNames = [...]string{"idle", "loading", "cached", "validated", "finalized"}

func (p LoadPhase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Phase returns the loader state.
func (s *State) Phase() LoadPhase { return s.phase }

// beginAssemblyLoad marks a load in flight. Only one load may be in
// flight per instance.
func (s *State) beginAssemblyLoad() {
	if s.phase != PhaseIdle {
		s.fatalf("vm: assembly load started while another is %s", s.phase)
	}
	s.phase = PhaseLoading
}

func (s *State) endAssemblyLoad() {
	if s.phase == PhaseIdle {
		s.fatalf("vm: assembly load ended while none was in flight")
	}
	s.phase = PhaseIdle
}

// ---------------------------------------------------------------------------
// Textual assemblies
// ---------------------------------------------------------------------------

// LoadTypeAssembly loads and caches the types of a JSON assembly without
// finalizing it. Used for reflection-only assemblies.
func (s *State) LoadTypeAssembly(text []byte) *reflection.Assembly {
	s.beginAssemblyLoad()

	doc, err := reflection.ParseJSON(text)
	if err != nil {
		s.fatalf("vm: %v", err)
	}
	a, types := s.buildAssembly(doc)
	s.cacheAssemblyTypes(a, types)

	s.endAssemblyLoad()
	return a
}

// LoadAssemblyJSON loads a JSON assembly and, unless the instance is
// compile only, finalizes it.
func (s *State) LoadAssemblyJSON(text []byte) *reflection.Assembly {
	s.beginAssemblyLoad()

	doc, err := reflection.ParseJSON(text)
	if err != nil {
		s.fatalf("vm: %v", err)
	}
	a := s.loadDocument(doc)

	s.endAssemblyLoad()
	return a
}

// ---------------------------------------------------------------------------
// Binary assemblies
// ---------------------------------------------------------------------------

// LoadAssemblyBinary loads an inflated binary assembly body.
func (s *State) LoadAssemblyBinary(body []byte) *reflection.Assembly {
	s.LoadAssemblyBinaryHeader(body)
	return s.LoadAssemblyBinaryBody()
}

// LoadAssemblyBinaryHeader parses an inflated binary assembly and checks
// its references, staging it for LoadAssemblyBinaryBody.
func (s *State) LoadAssemblyBinaryHeader(body []byte) {
	if s.staged != nil {
		s.fatalf("vm: binary assembly %s is already staged", s.staged.Name)
	}
	doc, err := reflection.ParseBinary(body)
	if err != nil {
		s.fatalf("vm: %v", err)
	}
	s.checkReferences(doc)
	s.staged = doc
	log.Debugf("vm: staged binary assembly %s (%s)", doc.Name, humanize.Bytes(uint64(len(body))))
}

// LoadAssemblyBinaryBody loads the staged assembly.
func (s *State) LoadAssemblyBinaryBody() *reflection.Assembly {
	doc := s.staged
	if doc == nil {
		s.fatalf("vm: no binary assembly staged")
	}
	s.staged = nil

	s.beginAssemblyLoad()
	a := s.loadDocument(doc)
	s.endAssemblyLoad()
	return a
}

// ---------------------------------------------------------------------------
// Executable modules
// ---------------------------------------------------------------------------

// LoadExecutableAssembly loads a compressed executable module from disk.
// Names that are not absolute are looked up in the configured bin
// directory; the module extension is appended when missing.
func (s *State) LoadExecutableAssembly(name string, absolute bool) *reflection.Assembly {
	path := s.cfg.ModulePath(name, absolute)

	data, unmap, err := mapFile(path)
	if err != nil || len(data) == 0 {
		if unmap != nil {
			unmap()
		}
		s.fatalf("vm: error loading executable %s, unable to map file %s: %v", name, path, err)
	}
	body := s.openExecutableAssemblyBinary(data)
	unmap()

	log.Infof("vm: loading executable %s", path)
	s.LoadAssemblyBinaryHeader(body)
	return s.readExecutableAssemblyBinaryBody()
}

// LoadExecutableAssemblyBinary loads a compressed executable module held
// in memory.
func (s *State) LoadExecutableAssemblyBinary(buf []byte) *reflection.Assembly {
	body := s.openExecutableAssemblyBinary(buf)
	s.LoadAssemblyBinaryHeader(body)
	return s.readExecutableAssemblyBinaryBody()
}

func (s *State) openExecutableAssemblyBinary(buf []byte) []byte {
	body, err := binmod.Decode(buf)
	if err != nil {
		s.fatalf("vm: %v", err)
	}
	return body
}

func (s *State) readExecutableAssemblyBinaryBody() *reflection.Assembly {
	a := s.LoadAssemblyBinaryBody()
	if a == nil {
		s.fatalf("vm: error loading executable")
	}
	a.FreeByteCode()
	return a
}

// ---------------------------------------------------------------------------
// Shared load path
// ---------------------------------------------------------------------------

func (s *State) loadDocument(doc *reflection.Document) *reflection.Assembly {
	a, types := s.buildAssembly(doc)
	s.cacheAssemblyTypes(a, types)
	if !s.IsCompiling() {
		s.finalizeAssemblyLoad(a, types)
	}
	return a
}

// checkReferences requires every referenced assembly to be loaded.
func (s *State) checkReferences(doc *reflection.Document) {
	for _, ref := range doc.References {
		if ref == doc.Name {
			continue
		}
		if s.Assembly(ref) == nil {
			s.fatalf("vm: assembly %s references %s, which is not loaded", doc.Name, ref)
		}
	}
}

// buildAssembly links doc against the type cache and takes ownership of
// the resulting assembly.
func (s *State) buildAssembly(doc *reflection.Document) (*reflection.Assembly, []*reflection.Type) {
	s.checkReferences(doc)

	a, err := reflection.Build(doc, s.GetType)
	if err != nil {
		s.fatalf("vm: %v", err)
	}
	s.assemblies = append(s.assemblies, a)

	types := a.Types()
	log.Infof("vm: loaded assembly %s (%d types)", a.Name(), len(types))
	return a, types
}
