package wire

import (
	"bytes"

	flatbuffers "github.com/google/flatbuffers/go"

	fb "github.com/open-teleop/rover/pkg/flatbuffers/teleop/wire"
)

const (
	fileIdentifierLength = 4
	// minFlatBufferSize covers the root offset and the file identifier.
	minFlatBufferSize = flatbuffers.SizeUOffsetT + fileIdentifierLength
)

// FlatBuffersCodec encodes commands as teleop.wire.MotorCommand tables.
type FlatBuffersCodec struct{}

func (FlatBuffersCodec) Encode(cmd MotorCommand) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	builder := flatbuffers.NewBuilder(32)
	fb.MotorCommandStart(builder)
	fb.MotorCommandAddLeft(builder, int16(cmd.Left))
	fb.MotorCommandAddRight(builder, int16(cmd.Right))
	fb.MotorCommandAddIssuedAtNs(builder, toUnixNano(cmd.IssuedAt))
	fb.FinishMotorCommandBuffer(builder, fb.MotorCommandEnd(builder))

	return builder.FinishedBytes(), nil
}

func (FlatBuffersCodec) Decode(data []byte) (cmd MotorCommand, err error) {
	if len(data) < minFlatBufferSize {
		return MotorCommand{}, malformed("short buffer: %d bytes", len(data))
	}
	id := data[flatbuffers.SizeUOffsetT:minFlatBufferSize]
	if !bytes.Equal(id, []byte(fb.MotorCommandIdentifier)) {
		return MotorCommand{}, malformed("bad file identifier %q", id)
	}
	if err := checkTable(data); err != nil {
		return MotorCommand{}, err
	}

	// The runtime indexes slices without bounds checks of its own.
	defer func() {
		if r := recover(); r != nil {
			cmd = MotorCommand{}
			err = malformed("corrupt table: %v", r)
		}
	}()

	msg := fb.GetRootAsMotorCommand(data, 0)
	cmd = MotorCommand{
		Left:     int(msg.Left()),
		Right:    int(msg.Right()),
		IssuedAt: fromUnixNano(msg.IssuedAtNs()),
	}
	if !inRange(cmd.Left) || !inRange(cmd.Right) {
		return MotorCommand{}, outOfRange(cmd.Left, cmd.Right)
	}
	return cmd, nil
}

// checkTable verifies that the root table and its vtable lie inside data.
func checkTable(data []byte) error {
	size := len(data)
	root := int(flatbuffers.GetUOffsetT(data))
	if root < minFlatBufferSize || root+flatbuffers.SizeSOffsetT > size {
		return malformed("root offset %d outside %d byte buffer", root, size)
	}
	vtable := root - int(flatbuffers.GetSOffsetT(data[root:]))
	if vtable < 0 || vtable+2*flatbuffers.SizeVOffsetT > size {
		return malformed("vtable offset %d outside %d byte buffer", vtable, size)
	}
	vtableLen := int(flatbuffers.GetVOffsetT(data[vtable:]))
	if vtableLen < 2*flatbuffers.SizeVOffsetT || vtable+vtableLen > size {
		return malformed("vtable length %d invalid", vtableLen)
	}
	tableLen := int(flatbuffers.GetVOffsetT(data[vtable+flatbuffers.SizeVOffsetT:]))
	if root+tableLen > size {
		return malformed("table length %d exceeds buffer", tableLen)
	}
	return nil
}
