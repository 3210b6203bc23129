package app

import (
	"context"
	"errors"
	"testing"

	"github.com/fd1az/chainstream/business/blockstream/domain"
)

func TestMultiHandler(t *testing.T) {
	var order []string
	named := func(name string, err error) Handler {
		return HandlerFunc(func(context.Context, domain.Event) error {
			order = append(order, name)
			return err
		})
	}
	errSink := errors.New("sink down")

	tests := []struct {
		name      string
		handlers  MultiHandler
		wantErr   error
		wantOrder []string
	}{
		{
			name:      "all_called_in_order",
			handlers:  MultiHandler{named("reporter", nil), named("log", nil)},
			wantOrder: []string{"reporter", "log"},
		},
		{
			name:      "stops_at_first_error",
			handlers:  MultiHandler{named("reporter", errSink), named("log", nil)},
			wantErr:   errSink,
			wantOrder: []string{"reporter"},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order = nil
			ev := domain.NewBlock{Header: makeChain(1, 1, 0, genesis())[0]}

			if err := tt.handlers.HandleEvent(context.Background(), ev); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(order) != len(tt.wantOrder) {
				t.Fatalf("called %v, want %v", order, tt.wantOrder)
			}
			for i := range order {
				if order[i] != tt.wantOrder[i] {
					t.Errorf("called %v, want %v", order, tt.wantOrder)
				}
			}
		})
	}
}
