// Package bridge drives requests that land inside an injection region: it
// translates coordinates between the host document and the region's virtual
// document, forwards the request to a pooled downstream server, and
// transforms the response back into host terms.
package bridge

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	dsprotocol "go.lsp.dev/protocol"
)

// Host and virtual coordinates differ only in the line component:
// virtual_line = host_line - region_start_line. The character component is
// preserved exactly in both directions because virtual content blanks the
// host's surrounding bytes instead of removing them.

// ToVirtualPosition maps a host position into a region's virtual document.
func ToVirtualPosition(p protocol.Position, regionStartLine uint32) protocol.Position {
	return protocol.Position{
		Line:      satSub(p.Line, regionStartLine),
		Character: p.Character,
	}
}

// ToHostPosition maps a virtual-document position back into the host.
func ToHostPosition(p protocol.Position, regionStartLine uint32) protocol.Position {
	return protocol.Position{
		Line:      satAdd(p.Line, regionStartLine),
		Character: p.Character,
	}
}

// ToVirtualRange translates both endpoints of a host range.
func ToVirtualRange(r protocol.Range, regionStartLine uint32) protocol.Range {
	return protocol.Range{
		Start: ToVirtualPosition(r.Start, regionStartLine),
		End:   ToVirtualPosition(r.End, regionStartLine),
	}
}

// ToHostRange translates both endpoints of a virtual range.
func ToHostRange(r protocol.Range, regionStartLine uint32) protocol.Range {
	return protocol.Range{
		Start: ToHostPosition(r.Start, regionStartLine),
		End:   ToHostPosition(r.End, regionStartLine),
	}
}

// DownstreamPosition converts an upstream position, already translated to
// virtual space, into the downstream protocol's position type.
func DownstreamPosition(p protocol.Position) dsprotocol.Position {
	return dsprotocol.Position{Line: p.Line, Character: p.Character}
}

// DownstreamRange converts a virtual-space range to the downstream type.
func DownstreamRange(r protocol.Range) dsprotocol.Range {
	return dsprotocol.Range{Start: DownstreamPosition(r.Start), End: DownstreamPosition(r.End)}
}

func satSub(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}

func satAdd(a, b uint32) uint32 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint32(0)
}
