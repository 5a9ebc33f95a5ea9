package streamstatus

import "github.com/pithecene-io/runledger/types"

// MessageMapper translates a finalized status message into the form the
// downstream transport expects.
type MessageMapper interface {
	Map(msg types.StatusMessage) types.StatusMessage
}

// MapperFunc adapts a plain function to MessageMapper.
type MapperFunc func(types.StatusMessage) types.StatusMessage

// Map implements MessageMapper.
func (f MapperFunc) Map(msg types.StatusMessage) types.StatusMessage {
	return f(msg)
}

// IdentityMapper returns messages unchanged.
var IdentityMapper MessageMapper = MapperFunc(func(msg types.StatusMessage) types.StatusMessage {
	return msg
})
