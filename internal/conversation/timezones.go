package conversation

// Timezone is a selectable IANA timezone with its button label.
type Timezone struct {
	ID    string
	Label string
}

// DefaultTimezones lists the Russian timezones offered to users,
// sorted by UTC offset.
var DefaultTimezones = []Timezone{
	{"Europe/Kaliningrad", "Kaliningrad (UTC+2)"},
	{"Europe/Moscow", "Moscow (UTC+3)"},
	{"Europe/Samara", "Samara (UTC+4)"},
	{"Asia/Yekaterinburg", "Yekaterinburg (UTC+5)"},
	{"Asia/Omsk", "Omsk (UTC+6)"},
	{"Asia/Krasnoyarsk", "Krasnoyarsk (UTC+7)"},
	{"Asia/Irkutsk", "Irkutsk (UTC+8)"},
	{"Asia/Yakutsk", "Yakutsk (UTC+9)"},
	{"Asia/Vladivostok", "Vladivostok (UTC+10)"},
	{"Asia/Magadan", "Magadan (UTC+11)"},
	{"Asia/Kamchatka", "Kamchatka (UTC+12)"},
}
