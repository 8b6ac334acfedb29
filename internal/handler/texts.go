package handler

// User-facing texts. The bot speaks Russian to end users.
const (
	textWelcome         = "Здравствуйте! Я помогу записаться на встречу."
	textNotApproved     = "Доступ к записи ещё не открыт. Отправьте /start, чтобы запросить доступ."
	textNothingToCancel = "Сейчас нет активной записи, которую можно отменить."

	textAccessPendingFmt = "Запрос на доступ отправлен администратору.\nВаш ID: %d\nВы получите сообщение, когда доступ будет открыт."
	textNewRequestFmt    = "Новый запрос на доступ: %s\nID: %d\n\n/approve %d — одобрить\n/reject %d — отклонить"
	textAccessGranted    = "Доступ открыт! Отправьте /book, чтобы записаться на встречу."

	textHelpGuest = "Доступные команды:\n/start — запросить доступ\n/help — справка"
	textHelpUser  = "Доступные команды:\n/book — записаться на встречу\n/cancel — отменить текущую запись\n/cancel_booking — отменить подтверждённую встречу\n/help — справка"
	textHelpAdmin = "\nКоманды администратора:\n/pending — запросы на доступ\n/approve <id> — одобрить доступ\n/reject <id> — отклонить доступ\n/setlimit <id> <30|60> — ограничить длительность\n/removelimit <id> — снять ограничение\n/limits — список ограничений"

	textAdminOnly    = "Эта команда доступна только администратору."
	textNoPending    = "Нет ожидающих запросов на доступ."
	textBadUserID    = "Укажите числовой ID пользователя."
	textBadLimit     = "Длительность должна быть 30 или 60 минут."
	textNoSuchReq    = "Ожидающий запрос с таким ID не найден."
	textNoLimits     = "Ограничения длительности не заданы."
	textNoSuchLimit  = "Для этого пользователя ограничение не задано."

	textNoUpcoming        = "У вас нет предстоящих встреч."
	textPickCancelBooking = "Выберите встречу, которую хотите отменить:"
	textCancelDone        = "Встреча отменена."
	textCancelFailed      = "Не удалось отменить встречу. Попробуйте позже."
	textBookingGone       = "Эта встреча уже не активна."
	textCancelReason      = "Отменено пользователем через Telegram"
)
