package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event одно событие Server-Sent Events
type Event struct {
	Type string // Поле "event:", пустое для событий без типа
	Data string // Строки "data:", соединенные через "\n"
	ID   string // Поле "id:", машинка кладет туда millis()
}

// Scanner читает события из потока text/event-stream.
//
//	scanner := NewScanner(body)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	err := scanner.Err()
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner создает сканер поверх reader
func NewScanner(reader io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(reader, 4096)}
}

// Next переходит к следующему событию. Возвращает false в конце потока или при ошибке.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}

	var (
		event   Event
		data    []string
		hasData bool
	)

	emit := func() {
		event.Data = strings.Join(data, "\n")
		s.current = event
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				emit()
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Пустая строка завершает событие
		if line == "" {
			if hasData {
				emit()
				return true
			}
			event = Event{}
			continue
		}

		// Комментарий (машинка шлет их как keep-alive)
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			event.Type = value
		case "id":
			event.ID = value
		}
	}
}

// Event возвращает последнее прочитанное событие
func (s *Scanner) Event() Event {
	return s.current
}

// Err возвращает ошибку чтения; чистый конец потока ошибкой не считается
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
