package guest

import (
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"
)

// Output receives what the guest prints.
var Output io.Writer = os.Stdout

var startTime = time.Now()

// OpenLibs installs the standard guest library: base functions plus the
// math and os tables.
func (s *State) OpenLibs() {
	s.SetGlobal("print", s.NewNative("print", basePrint))
	s.SetGlobal("type", s.NewNative("type", func(s *State, args []Value) ([]Value, error) {
		return []Value{TypeName(arg(args, 0))}, nil
	}))
	s.SetGlobal("tostring", s.NewNative("tostring", func(s *State, args []Value) ([]Value, error) {
		return []Value{ToString(arg(args, 0))}, nil
	}))

	m := s.NewTable()
	m.Set("pi", math.Pi)
	m.Set("huge", math.Inf(1))
	m.Set("floor", s.NewNative("floor", func(s *State, args []Value) ([]Value, error) {
		n, ok := arg(args, 0).(float64)
		if !ok {
			return nil, Errorf("bad argument #1 to 'floor' (number expected)")
		}
		return []Value{math.Floor(n)}, nil
	}))
	m.Set("abs", s.NewNative("abs", func(s *State, args []Value) ([]Value, error) {
		n, ok := arg(args, 0).(float64)
		if !ok {
			return nil, Errorf("bad argument #1 to 'abs' (number expected)")
		}
		return []Value{math.Abs(n)}, nil
	}))
	s.SetGlobal("math", m)

	o := s.NewTable()
	o.Set("time", s.NewNative("time", func(s *State, args []Value) ([]Value, error) {
		return []Value{float64(time.Now().Unix())}, nil
	}))
	o.Set("clock", s.NewNative("clock", func(s *State, args []Value) ([]Value, error) {
		return []Value{time.Since(startTime).Seconds()}, nil
	}))
	o.Set("getenv", s.NewNative("getenv", func(s *State, args []Value) ([]Value, error) {
		name, _ := arg(args, 0).(string)
		v, ok := os.LookupEnv(name)
		if !ok {
			return []Value{nil}, nil
		}
		return []Value{v}, nil
	}))
	s.SetGlobal("os", o)
}

// OpenSocket installs the networking extension as the global "socket".
func (s *State) OpenSocket() {
	sock := s.NewTable()
	sock.Set("gettime", s.NewNative("gettime", func(s *State, args []Value) ([]Value, error) {
		return []Value{float64(time.Now().UnixNano()) / 1e9}, nil
	}))
	sock.Set("sleep", s.NewNative("sleep", func(s *State, args []Value) ([]Value, error) {
		secs, _ := arg(args, 0).(float64)
		if secs > 0 {
			time.Sleep(time.Duration(secs * float64(time.Second)))
		}
		return nil, nil
	}))

	dns := s.NewTable()
	dns.Set("gethostname", s.NewNative("gethostname", func(s *State, args []Value) ([]Value, error) {
		h, err := os.Hostname()
		if err != nil {
			return []Value{nil, err.Error()}, nil
		}
		return []Value{h}, nil
	}))
	dns.Set("toip", s.NewNative("toip", func(s *State, args []Value) ([]Value, error) {
		host, _ := arg(args, 0).(string)
		addrs, err := net.LookupHost(host)
		if err != nil || len(addrs) == 0 {
			return []Value{nil, "host not found"}, nil
		}
		return []Value{addrs[0]}, nil
	}))
	sock.Set("dns", dns)
	s.SetGlobal("socket", sock)
}

func basePrint(s *State, args []Value) ([]Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ToString(a)
	}
	fmt.Fprintln(Output, strings.Join(parts, "\t"))
	return nil, nil
}

// ToString renders a value the way the guest's tostring does.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return fmt.Sprintf("%.0f", x)
		}
		return fmt.Sprintf("%.14g", x)
	case int:
		return fmt.Sprintf("%d", x)
	case string:
		return x
	case *Function:
		return fmt.Sprintf("function: %p", x)
	case *Table:
		return fmt.Sprintf("table: %p", x)
	default:
		return fmt.Sprintf("userdata: %T", x)
	}
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}
