package conversation

// User-facing texts. The bot speaks Russian to end users.
const (
	textChooseTimezone = "Выберите ваш часовой пояс:"
	textChooseDuration = "Выберите длительность встречи:"
	textLoading        = "Загружаю доступное время..."
	textNoSlots        = "Нет доступного времени на этот период."
	textFetchFailed    = "Извините, не удалось загрузить расписание. Попробуйте ещё раз."
	textEnterName      = "Введите ваше имя:"
	textNameEmpty      = "Имя не может быть пустым. Введите ваше имя:"
	textNameTooLong    = "Имя слишком длинное (максимум 100 символов). Введите более короткое имя:"
	textEnterEmail     = "Введите ваш email:"
	textEmailInvalid   = "Некорректный email. Попробуйте ещё раз:"
	textCreating       = "Создаю запись..."
	textSlotTaken      = "Это время уже занято. Пожалуйста, выберите другое время."
	textGenericError   = "Извините, что-то пошло не так. Попробуйте ещё раз."
	textCancelled      = "Запись отменена."
	textTimedOut       = "Сессия записи истекла из-за неактивности.\nПожалуйста, начните заново командой /book."

	textAvailabilityFmt = "Доступное время (%s):\n\nНажмите на удобное время:"
	textGreetFmt        = "Отлично, %s! Хотите указать email для подтверждения?"

	buttonCancel      = "Отмена"
	buttonRetry       = "Попробовать снова"
	buttonPickAnother = "Выбрать другое время"
	buttonTimezone    = "Часовой пояс"
	buttonPrevDates   = "← Назад"
	buttonMoreDates   = "Ещё даты →"
	buttonConfirm     = "Подтвердить запись"
	buttonEmailYes    = "Да, указать email"
	buttonEmailNo     = "Нет, пропустить"
)
