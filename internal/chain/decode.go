package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"statsScope/internal/model"
)

// DecodeLog converts a raw log into a LogEvent. Decode failures are recorded on
// the event rather than returned so the caller can count and skip them.
func DecodeLog(filter EventFilter, log types.Log) model.LogEvent {
	ev := model.LogEvent{
		Name:        filter.Name,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Args:        model.NewArgs(),
	}
	if filter.Event == nil {
		return ev
	}
	if ev.Name == "" {
		ev.Name = filter.Event.Name
	}

	args, err := decodeArgs(*filter.Event, log)
	if err != nil {
		ev.DecodeErr = err.Error()
		return ev
	}
	ev.Args = args
	return ev
}

func decodeArgs(event abi.Event, log types.Log) (model.Args, error) {
	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.Args{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.Args{}, fmt.Errorf("topic0 %s does not match %s", log.Topics[0].Hex(), event.Name)
	}

	topicValues := make(map[string]interface{}, len(indexed))
	if err := abi.ParseTopicsIntoMap(topicValues, indexed, log.Topics[1:]); err != nil {
		return model.Args{}, fmt.Errorf("parse topics: %w", err)
	}

	dataValues := make(map[string]interface{})
	if err := event.Inputs.NonIndexed().UnpackIntoMap(dataValues, log.Data); err != nil {
		return model.Args{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	args := model.NewArgs()
	for _, input := range event.Inputs {
		if input.Indexed {
			args.Set(input.Name, topicValues[input.Name])
		} else {
			args.Set(input.Name, dataValues[input.Name])
		}
	}
	return args, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
