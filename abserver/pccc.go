package abserver

import (
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/pccc"
)

// handleExecutePCCC serves CIP service 0x4B against the PCCC Object:
// strip the requester id, decode the typed command, perform the data
// table access, and wrap the PCCC reply back in a CIP response carrying
// the same requester id.
func (s *Server) handleExecutePCCC(svc byte, data []byte) []byte {
	if !s.cfg.PLC.IsPCCC() {
		return makeCIPError(svc, cip.StatusServiceNotSup)
	}
	if len(data) < 7 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	idLen := int(data[0])
	if idLen < 7 || idLen > len(data) {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	requesterID := data[:idLen]
	raw := data[idLen:]

	cmd, err := pccc.ParseCommand(raw)
	if err != nil {
		logging.DebugError("abserver", "pccc parse", err)
		return makeCIPError(svc, cip.StatusInvalidParam)
	}

	var reply []byte
	switch {
	case cmd.IsRead():
		reply = s.pcccRead(cmd)
	case cmd.IsWrite():
		reply = s.pcccWrite(cmd)
	default:
		reply = cmd.BuildReply(pccc.StsFunctionNA, 0, nil)
	}

	out := []byte{svc | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00}
	out = append(out, requesterID...)
	out = append(out, reply...)
	return out
}

func (s *Server) pcccFile(cmd *pccc.Command) *ServerTag {
	return s.filesByKey[fileKey{cmd.FileType, cmd.FileNumber}]
}

func (s *Server) pcccRead(cmd *pccc.Command) []byte {
	t := s.pcccFile(cmd)
	if t == nil {
		return cmd.BuildReply(pccc.StsExtStatusFlag, pccc.ExtStsFileNumberNotExist, nil)
	}
	off := int(cmd.Element)*t.Type.size + int(cmd.SubElement)*pccc.SubElementSize
	data, err := t.ReadAt(off, int(cmd.ByteCount))
	if err != nil {
		return cmd.BuildReply(pccc.StsExtStatusFlag, pccc.ExtStsElementOutOfRange, nil)
	}
	return cmd.BuildReply(pccc.StsSuccess, 0, data)
}

func (s *Server) pcccWrite(cmd *pccc.Command) []byte {
	t := s.pcccFile(cmd)
	if t == nil {
		return cmd.BuildReply(pccc.StsExtStatusFlag, pccc.ExtStsFileNumberNotExist, nil)
	}
	off := int(cmd.Element)*t.Type.size + int(cmd.SubElement)*pccc.SubElementSize
	if err := t.WriteAt(off, cmd.Data); err != nil {
		return cmd.BuildReply(pccc.StsExtStatusFlag, pccc.ExtStsElementOutOfRange, nil)
	}
	return cmd.BuildReply(pccc.StsSuccess, 0, nil)
}
