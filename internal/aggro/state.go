package aggro

// State состояние контроллера агрессии
type State uint8

const (
	StateInactive State = iota // Юнит ещё не появился в мире
	StateIdle                  // Активен, цели нет
	StateEngaged               // Активен, цель есть (может быть устаревшей до следующего тика)
)

// String возвращает строковое представление состояния
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateIdle:
		return "idle"
	case StateEngaged:
		return "engaged"
	default:
		return "unknown"
	}
}
