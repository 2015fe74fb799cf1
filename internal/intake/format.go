package intake

import (
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
)

// Menu buttons. They work from any state, like the matching /commands.
const (
	BtnCreate  = "Создать напоминание"
	BtnList    = "Мои напоминания"
	BtnWeather = "Напоминание о погоде"
	BtnToday   = "Напоминания на сегодня"
)

const (
	textGreeting     = "Привет! Я умный бот-напоминалка.\nВыберите действие:"
	textChoose       = "Выберите действие:"
	textAskName      = "Введите название напоминания:"
	textAskCity      = "Введите город для отслеживания погоды:"
	textAskWeatherAt = "Введите время для напоминания (например: 'каждый день в 8:00'):"
	textAskTime      = "Введите время напоминания:\nПримеры:\n- Завтра в 10:00\n- Каждый день в 9:30\n- 15 мая в 19:30\n- Через 10 минут"
	textUnresolved   = "Не могу распознать время. Попробуйте еще раз."
	textTimePassed   = "Это время уже прошло. Введите время еще раз:"
	textAskFile      = "Прикрепите файл если нужно или нажмите /skip"
	textAskFileAgain = "Прикрепите документ, фото или аудио, или нажмите /skip"
	textSaveFailed   = "Не удалось сохранить напоминание. Попробуйте позже."
	textNoActive     = "У вас пока нет активных напоминаний"
	textNoToday      = "На сегодня напоминаний нет"
	textDeleted      = "Напоминание удалено ✅"
	textDeleteFailed = "Ошибка удаления"
	textEditFailed   = "Ошибка редактирования"
	textAskNewName   = "Введите новое название напоминания (или /skip чтобы оставить текущее):"
	textAskNewTime   = "Введите новое время напоминания (или /skip чтобы оставить текущее):"
	textEditGone     = "Напоминание не найдено."
	textUpdateFailed = "Ошибка обновления. Попробуйте позже."
	textUpdated      = "Напоминание обновлено ✅"
	textCancelled    = "Действие отменено."
	textListFailed   = "Не удалось загрузить напоминания. Попробуйте позже."
	listDateLayout   = "02.01.2006 15:04"
	todayTimeLayout  = "15:04"
	buttonLabelRunes = 24
	callbackDelete   = "del:"
	callbackEdit     = "edit:"
)

func mainMenu() *kit.SendOptions {
	return &kit.SendOptions{Menu: [][]string{
		{BtnCreate, BtnList},
		{BtnWeather, BtnToday},
	}}
}

func confirmationText(r reminder.Reminder, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("✅ Напоминание '")
	b.WriteString(r.DisplayName())
	b.WriteString("' создано!\nСледующий запуск: ")
	b.WriteString(r.NextRun.In(loc).Format(listDateLayout))
	if r.Recurring() {
		b.WriteString("\nПовтор: ")
		b.WriteString(recurrenceLabel(r.Recurrence))
	}
	if r.IsWeather {
		b.WriteString("\nГород: ")
		b.WriteString(r.City)
	}
	return b.String()
}

func listText(rs []reminder.Reminder, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Активные напоминания:\n")
	for _, r := range rs {
		b.WriteString("\n• ")
		b.WriteString(r.DisplayName())
		b.WriteString("\nСледующий запуск: ")
		b.WriteString(r.NextRun.In(loc).Format(listDateLayout))
		if r.Recurring() {
			b.WriteString("\nПовтор: ")
			b.WriteString(recurrenceLabel(r.Recurrence))
		}
		if r.IsWeather {
			b.WriteString("\nПогода в ")
			b.WriteString(r.City)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func todayText(rs []reminder.Reminder, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Напоминания на сегодня:\n")
	for _, r := range rs {
		b.WriteString("\n• ")
		b.WriteString(r.DisplayName())
		b.WriteString(" в ")
		b.WriteString(r.NextRun.In(loc).Format(todayTimeLayout))
	}
	return b.String()
}

// listKeyboard has one row per reminder: delete and edit buttons.
func listKeyboard(rs []reminder.Reminder) *kit.SendOptions {
	rows := make([][]kit.Button, 0, len(rs))
	for _, r := range rs {
		label := shorten(r.DisplayName(), buttonLabelRunes)
		rows = append(rows, []kit.Button{
			{Text: "✖️ " + label, Data: callbackDelete + r.ID},
			{Text: "✏️ " + label, Data: callbackEdit + r.ID},
		})
	}
	return &kit.SendOptions{Inline: rows}
}

func shorten(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
