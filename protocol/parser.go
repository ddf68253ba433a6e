package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"microrail-remote/common"
)

var (
	// ErrUnknownTag сообщение с неизвестным тегом или типом события
	ErrUnknownTag = errors.New("unknown message tag")
	// ErrMalformed сообщение не удалось разобрать
	ErrMalformed = errors.New("malformed message")
)

// Update обновление статуса (используем общий тип)
type Update = common.Update

// Format формат полезной нагрузки WebSocket
type Format string

const (
	FormatText Format = "text" // Кадры вида "A:dir:speed" и "B:voltage:capacity"
	FormatJSON Format = "json" // Один JSON-объект статуса на сообщение
)

// ParseFormat разбирает имя формата
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unsupported websocket format %q", name)
}

// Decode разбирает входящее сообщение WebSocket в соответствии с форматом
func Decode(format Format, payload []byte) (Update, error) {
	switch format {
	case FormatJSON:
		return ParseStatusJSON(payload)
	case FormatText:
		return ParseFrame(string(payload))
	}
	return Update{}, fmt.Errorf("unsupported websocket format %q", format)
}

// frameDecoder декодирует части текстового кадра после тега
type frameDecoder func(parts []string) (Update, error)

// frameDecoders содержит декодеры по тегу кадра
var frameDecoders = map[string]frameDecoder{
	"A": decodeMotion,  // Направление и скорость
	"B": decodeBattery, // Напряжение и емкость аккумулятора
}

// ParseFrame разбирает текстовый кадр вида "A:<direction>:<speed>" или "B:<voltage>:<capacity>"
func ParseFrame(frame string) (Update, error) {
	frame = strings.TrimRight(frame, "\r\n")
	parts := strings.Split(frame, ":")

	decoder, ok := frameDecoders[parts[0]]
	if !ok {
		return Update{}, fmt.Errorf("%w: frame %q", ErrUnknownTag, frame)
	}

	if len(parts) < 3 {
		return Update{}, fmt.Errorf("%w: frame %q: expected 3 parts, got %d", ErrMalformed, frame, len(parts))
	}

	update, err := decoder(parts[1:])
	if err != nil {
		return Update{}, fmt.Errorf("frame %q: %w", frame, err)
	}
	update.Source = frame
	return update, nil
}

// decodeMotion декодирует кадр A
func decodeMotion(parts []string) (Update, error) {
	direction, err := parseInt(parts[0])
	if err != nil {
		return Update{}, fmt.Errorf("direction: %w", err)
	}
	speed, err := parseInt(parts[1])
	if err != nil {
		return Update{}, fmt.Errorf("speed: %w", err)
	}

	return Update{
		Set:    common.FieldMotion,
		Values: common.Status{Direction: common.Direction(direction), Speed: speed},
	}, nil
}

// decodeBattery декодирует кадр B. Значения передаются как есть.
func decodeBattery(parts []string) (Update, error) {
	return Update{
		Set:    common.FieldBattery,
		Values: common.Status{BatVoltage: parts[0], BatRate: parts[1]},
	}, nil
}

// statusFields поля JSON-статуса и соответствующие биты
var statusFields = []struct {
	key   string
	field common.Field
}{
	{"ssid", common.FieldSSID},
	{"name", common.FieldName},
	{"version", common.FieldVersion},
	{"batVoltage", common.FieldBatVoltage},
	{"batRate", common.FieldBatRate},
	{"speed", common.FieldSpeed},
	{"direction", common.FieldDirection},
}

// ParseStatusJSON разбирает JSON-объект статуса.
// Отсутствующие поля (или null) помечаются как не имеющие значения.
func ParseStatusJSON(payload []byte) (Update, error) {
	object, err := decodeObject(payload)
	if err != nil {
		return Update{}, err
	}

	update := Update{Source: string(payload)}
	for _, sf := range statusFields {
		raw, present := object[sf.key]
		if !present || isNull(raw) {
			update.Clear |= sf.field
			continue
		}
		if err := assignField(&update, sf.field, raw); err != nil {
			return Update{}, fmt.Errorf("field %s: %w", sf.key, err)
		}
	}

	if raw, ok := object["macaddress"]; ok && !isNull(raw) {
		if err := assignField(&update, common.FieldMacAddress, raw); err != nil {
			return Update{}, fmt.Errorf("field macaddress: %w", err)
		}
	}

	return update, nil
}

// eventDecoder декодирует полезную нагрузку именованного события SSE
type eventDecoder func(data string) (Update, error)

// Имена событий, которые машинка отправляет в поток /events
const (
	EventStart      = "event.start"
	EventDirection  = "event.direction"
	EventSpeed      = "event.speed"
	EventBatVoltage = "event.batvoltage"
	EventBatRate    = "event.batrate"
)

// eventDecoders содержит декодеры по имени события
var eventDecoders = map[string]eventDecoder{
	EventStart:      decodeStart,
	EventDirection:  decodeDirection,
	EventSpeed:      decodeSpeed,
	EventBatVoltage: decodeBatVoltage,
	EventBatRate:    decodeBatRate,
}

// ParseEvent разбирает событие SSE по его типу
func ParseEvent(eventType, data string) (Update, error) {
	decoder, ok := eventDecoders[eventType]
	if !ok {
		return Update{}, fmt.Errorf("%w: event %q", ErrUnknownTag, eventType)
	}

	update, err := decoder(data)
	if err != nil {
		return Update{}, fmt.Errorf("event %s: %w", eventType, err)
	}
	update.Source = eventType + ":" + data
	return update, nil
}

// decodeStart декодирует приветственное сообщение {ssid, name, version, macaddress}
func decodeStart(data string) (Update, error) {
	object, err := decodeObject([]byte(data))
	if err != nil {
		return Update{}, err
	}

	var update Update
	for _, sf := range []struct {
		key   string
		field common.Field
	}{
		{"ssid", common.FieldSSID},
		{"name", common.FieldName},
		{"version", common.FieldVersion},
	} {
		raw, present := object[sf.key]
		if !present || isNull(raw) {
			update.Clear |= sf.field
			continue
		}
		if err := assignField(&update, sf.field, raw); err != nil {
			return Update{}, fmt.Errorf("field %s: %w", sf.key, err)
		}
	}
	if raw, ok := object["macaddress"]; ok && !isNull(raw) {
		if err := assignField(&update, common.FieldMacAddress, raw); err != nil {
			return Update{}, fmt.Errorf("field macaddress: %w", err)
		}
	}
	return update, nil
}

func decodeDirection(data string) (Update, error) {
	direction, err := parseInt(data)
	if err != nil {
		return Update{}, err
	}
	return Update{Set: common.FieldDirection, Values: common.Status{Direction: common.Direction(direction)}}, nil
}

func decodeSpeed(data string) (Update, error) {
	speed, err := parseInt(data)
	if err != nil {
		return Update{}, err
	}
	return Update{Set: common.FieldSpeed, Values: common.Status{Speed: speed}}, nil
}

func decodeBatVoltage(data string) (Update, error) {
	return Update{Set: common.FieldBatVoltage, Values: common.Status{BatVoltage: strings.TrimSpace(data)}}, nil
}

func decodeBatRate(data string) (Update, error) {
	return Update{Set: common.FieldBatRate, Values: common.Status{BatRate: strings.TrimSpace(data)}}, nil
}

// parseInt разбирает целое число из текста
func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformed, s)
	}
	return n, nil
}

// decodeObject разбирает JSON-объект, сохраняя числа в исходном виде
func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if object == nil {
		return nil, fmt.Errorf("%w: expected JSON object", ErrMalformed)
	}
	return object, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// assignField записывает значение поля из JSON в обновление
func assignField(update *Update, field common.Field, raw json.RawMessage) error {
	switch field {
	case common.FieldSpeed, common.FieldDirection:
		n, err := rawInt(raw)
		if err != nil {
			return err
		}
		if field == common.FieldSpeed {
			update.Values.Speed = n
		} else {
			update.Values.Direction = common.Direction(n)
		}
	default:
		text, err := rawText(raw)
		if err != nil {
			return err
		}
		switch field {
		case common.FieldBatVoltage:
			update.Values.BatVoltage = text
		case common.FieldBatRate:
			update.Values.BatRate = text
		case common.FieldSSID:
			update.Values.SSID = text
		case common.FieldName:
			update.Values.Name = text
		case common.FieldVersion:
			update.Values.Version = text
		case common.FieldMacAddress:
			update.Values.MacAddress = text
		}
	}
	update.Set |= field
	return nil
}

// rawInt принимает число или строку с целым числом
func rawInt(raw json.RawMessage) (int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseInt(s)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformed, raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformed, raw)
	}
	return int(f), nil
}

// rawText возвращает строку как есть, а числа и логические значения в исходной записи
func rawText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch v.(type) {
	case float64, bool:
		return string(bytes.TrimSpace(raw)), nil
	}
	return "", fmt.Errorf("%w: %s is not a scalar", ErrMalformed, raw)
}
