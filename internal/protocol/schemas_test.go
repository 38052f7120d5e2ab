package protocol_test

import (
	"testing"

	"kartetris.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	valid := map[string]string{
		protocol.EventGameUpdate: `{
		  "roomId":"room-a-b",
		  "update":"Game update",
		  "board":[[null,{"type":"O","position":{"x":3,"y":18},"shape":[[0,1,1,0],[0,1,1,0],[0,0,0,0],[0,0,0,0]],"color":"#fde047"}]],
		  "currentFigure":{"figure":{"position":{"x":1,"y":0},"shape":[[1]],"color":"gradient"},"startingPoint":{"x":1,"y":0}},
		  "step":4,
		  "score":40,
		  "won":false,
		  "character":"yoshi",
		  "playerName":"alice"
		}`,
		protocol.EventEffect:     `{"name":"DoubleGameSpeed","roomId":"room-a-b"}`,
		protocol.EventGameResult: `{"roomId":"room-a-b","winnerName":"bob","looserName":"alice","winnerScore":20,"looserScore":0}`,
	}
	for event, payload := range valid {
		if err := v.Validate(event, []byte(payload)); err != nil {
			t.Fatalf("%s: %v", event, err)
		}
	}

	starting := `{"update":"Game starting!","roomId":"room-a-b","board":"","currentFigure":"","step":0,"score":0}`
	if err := v.Validate(protocol.EventGameUpdate, []byte(starting)); err != nil {
		t.Fatalf("starting update: %v", err)
	}

	invalid := map[string]string{
		protocol.EventGameUpdate: `{"roomId":"r","character":"peach"}`,
		protocol.EventEffect:     `{"name":"","roomId":"r"}`,
		protocol.EventGameResult: `{"roomId":"r","winnerName":"bob"}`,
	}
	for event, payload := range invalid {
		if err := v.Validate(event, []byte(payload)); err == nil {
			t.Fatalf("%s: expected validation error for %s", event, payload)
		}
	}

	badShape := `{"roomId":"r","board":[[{"position":{"x":0,"y":0},"shape":[[2]],"color":"x"}]]}`
	if err := v.Validate(protocol.EventGameUpdate, []byte(badShape)); err == nil {
		t.Fatalf("expected shape cell rejected")
	}

	if err := v.Validate(protocol.EventWaiting, []byte(`{}`)); err != nil {
		t.Fatalf("events without schema pass: %v", err)
	}
}
