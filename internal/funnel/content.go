package funnel

import (
	"fmt"
	"strings"

	"github.com/imrishuroy/go-funnel-bot/internal/catalog"
)

// Button labels.
const (
	labelInterested = "✨ Мне интересно"
	labelSubscribe  = "Подписаться на канал"
	labelCheckSub   = "Проверить подписку"
	labelMenu       = "Открыть меню"
	labelPay        = "Оплатить"
	labelPaid       = "Я оплатила"
	labelBack       = "Назад в меню"
	labelRecover    = "Восстановить доступ"
)

// channelURL returns the public link for an "@name" channel id. Numeric ids have no public
// link, so the platform root is used.
func channelURL(channel string) string {
	if name, ok := strings.CutPrefix(channel, "@"); ok && name != "" {
		return "https://t.me/" + name
	}
	return "https://t.me/"
}

func formatPrice(a catalog.Amount) string {
	if a%100 == 0 {
		return fmt.Sprintf("%d₽", a.Whole())
	}
	return strings.Replace(a.String(), ".", ",", 1) + "₽"
}

func welcomeMessage(product catalog.Product, purchased bool) Message {
	text := "Добро пожаловать 🌙\n\n" +
		"Это проводник AWAIKING BOT — здесь практики, мягкая сила и пробуждение.\n\n" +
		"Ты выбрала: " + product.Title + ".\n" +
		"Нажми «Мне интересно», чтобы продолжить."
	rows := [][]Button{{{Text: labelInterested, Data: string(ActionInterested)}}}
	if purchased {
		rows = append(rows, []Button{{Text: labelRecover, Data: string(ActionRecover)}})
	}
	return Message{Text: text, Buttons: rows}
}

func subscribeMessage(channel string, retry bool) Message {
	text := "Шаг 1: подпишись на наш канал ниже, вернись и нажми «Проверить подписку».\n" +
		"Шаг 2: выбери продукт и оплати его прямо здесь."
	if retry {
		text = "Похоже, подписки пока нет 🤍\nНажми «Подписаться», затем «Проверить подписку»."
	}
	return Message{
		Text: text,
		Buttons: [][]Button{
			{{Text: labelSubscribe, URL: channelURL(channel)}},
			{{Text: labelCheckSub, Data: string(ActionCheckSubscription)}},
			{{Text: labelMenu, Data: string(ActionMenu)}},
		},
	}
}

func menuMessage(products []catalog.Product) Message {
	rows := make([][]Button, 0, len(products))
	for _, p := range products {
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("%s — %s", p.Title, formatPrice(p.Price)),
			Data: string(ActionSelectProduct) + ":" + p.Key,
		}})
	}
	return Message{Text: "Выбери продукт:", Buttons: rows}
}

func payButtons(payURL string) [][]Button {
	return [][]Button{
		{{Text: labelPay, URL: payURL}},
		{{Text: labelPaid, Data: string(ActionPaid)}},
		{{Text: labelBack, Data: string(ActionMenu)}},
	}
}

func offerMessage(product catalog.Product, payURL string) Message {
	var b strings.Builder
	b.WriteString("Подписка есть ✅\n\n")
	fmt.Fprintf(&b, "К оплате: %s — %s\n", product.Title, formatPrice(product.Price))
	if product.Description != "" {
		b.WriteString(product.Description + "\n")
	}
	b.WriteString("\nОткрой ссылку для оплаты и вернись сюда, затем нажми «Я оплатила».")
	return Message{Text: b.String(), Buttons: payButtons(payURL)}
}

func payFirstMessage(product catalog.Product, payURL string) Message {
	text := fmt.Sprintf("Оплата за «%s» пока не поступила 🤍\n\n", product.Title) +
		"Если ты уже оплатила, подожди минуту и нажми «Я оплатила» ещё раз."
	return Message{Text: text, Buttons: payButtons(payURL)}
}

func unlockMessage(product catalog.Product) Message {
	text := "✨ Благодарю за доверие!\n\n" +
		fmt.Sprintf("Твой доступ к «%s»:\n%s\n\n", product.Title, product.UnlockURL) +
		"Пусть практика мягко ведёт тебя 🌸"
	return Message{Text: text}
}

func notPurchasedMessage() Message {
	return Message{
		Text:    "Покупка пока не найдена 🤍\nВыбери продукт в меню, чтобы получить доступ.",
		Buttons: [][]Button{{{Text: labelMenu, Data: string(ActionMenu)}}},
	}
}

func reminderMessage(product catalog.Product, payURL string) Message {
	text := "Напоминание 🌙\n\n" +
		fmt.Sprintf("«%s» всё ещё ждёт тебя — %s.\n", product.Title, formatPrice(product.Price)) +
		"Открой ссылку для оплаты и вернись сюда, затем нажми «Я оплатила»."
	return Message{Text: text, Buttons: payButtons(payURL)}
}

func busyMessage(pending Action) Message {
	if pending == ActionPaid {
		return Message{Text: "Секунду, ещё проверяю оплату… ⏳"}
	}
	return Message{Text: "Секунду, обрабатываю предыдущее действие… ⏳"}
}

func hintMessage() Message {
	return Message{
		Text: "Не поняла сообщение 🤍\nНажми /start, открой меню или напиши «доступ», чтобы восстановить покупку.",
		Buttons: [][]Button{
			{{Text: labelMenu, Data: string(ActionMenu)}},
			{{Text: labelRecover, Data: string(ActionRecover)}},
		},
	}
}

func failureMessage() Message {
	return Message{Text: "Что-то пошло не так. Попробуй ещё раз чуть позже 🙏"}
}
