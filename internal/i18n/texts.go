package i18n

var languageNames = map[string]string{
	"en": "English",
	"ru": "Русский",
}

// Amounts arrive preformatted as strings, so printers never regroup digits
// in addresses or BTC values.
var translations = map[string]map[Key]string{
	"en": {
		Greeting: "Here you can attest your email.\n\n" +
			"Your email will be saved privately in your wallet, only a proof of attestation will be posted publicly on the blockchain. " +
			"The very fact of being attested may give you access to some services or tokens, even without disclosing your email. " +
			"Some apps may request you to reveal your attested email, you choose what to reveal and to which app.\n\n" +
			"You may also choose to make your attested email public.\n\n" +
			"The price of attestation is %[1]s BTC. The payment is nonrefundable even if the attestation fails for any reason.\n\n" +
			"After payment, you will receive an email with a verification code. Enter the code here in the chat.",
		WhitelistedReward: "After you successfully verify your email for the first time, and if your email corresponds to:\n%[1]s\n" +
			"you receive a $%[2]s reward in BTC.",
		InsertMyAddress: "Please send me your Bitcoin address that you wish to attest.\n" +
			"Pay for the attestation from this address only: a payment spending coins of several addresses is rejected.",
		InsertMyEmail:                "Please send me your email that you wish to attest.",
		GoingToAttestAddress:         "Thanks, going to attest your address: %[1]s.",
		GoingToAttestEmail:           "Thanks, going to attest your email: %[1]s.",
		WhitelistedEmailForReward:    "Your email qualifies for the attestation reward.",
		NotWhitelistedEmailForReward: "Your email does not qualify for the attestation reward.",
		PrivateOrPublic:              "Store your email privately in your wallet (recommended) or post it publicly?",
		PrivateChosen:                "Your email will be kept private and stored in your wallet.\nSend \"public\" now if you changed your mind.",
		PublicChosen: "Your email %[1]s will be posted into the public database and will be available for everyone.\n" +
			"Send \"private\" now if you changed your mind.",
		PleasePay:                "Please pay for the attestation: send %[2]s BTC to %[1]s\n%[3]s",
		ReceivedLessThanExpected: "Received %[1]s BTC, which is less than the expected %[2]s BTC.",
		ReceivedWrongAsset:       "Received payment in wrong asset.",
		ReceivedFromMultiple:     "Received a payment but looks like it was not sent from a single address.",
		ReceivedNotFromExpected:  "Received a payment but it was not sent from the expected address %[1]s.",
		SwitchToSingleAddress: "Make sure you pay from a single address, " +
			"otherwise switch to a single-address wallet and send me your address before paying.",
		ReceivedYourPayment:      "Received your payment of %[1]s BTC, waiting for confirmation. It should take about 30 minutes.",
		PaymentIsConfirmed:       "Your payment is confirmed. A verification email will be sent to your email address.",
		VerificationEmailSubject: "Email verification",
		VerificationEmailText:    "Your verification code is %[1]s\nEnter this code in the chat with \"%[2]s\"",
		VerificationEmailHTML: "<p>Your verification code is <h3>%[1]s</h3></p><p>Enter this code in the chat with \"%[2]s\"</p>" +
			"<p style=\"font-size: 13px; color: #727272; margin-top: 15px;\">-------<br>Please do not reply directly to this email.</p>",
		EmailWasSent: "Email was sent to %[1]s. Enter the verification code from the email here.\n" +
			"If you don't receive the email, send \"send email again\".",
		WrongVerificationCode:     "Wrong verification code! You have %[1]d attempts left.",
		WrongVerificationCodeLast: "Wrong verification code! This is your last attempt.",
		CodeConfirmed:             "Verification code was confirmed. Your email %[1]s is in attestation. Please, wait.",
		FirstTimeBonus: "You requested an attestation for the first time and will receive a welcome bonus " +
			"of $%[1]s (%[2]s BTC) from the distribution fund.",
		ReferredUserBonus: "You referred a user who has just verified their email and you will receive a reward " +
			"of $%[1]s (%[2]s BTC) from the distribution fund.\nThank you for bringing in a new user!",
		AlreadyAttested:           "You were already attested at %[1]s UTC. Send \"again\" to attest again.",
		CurrentAttestationFailed:  "Your attestation failed. Send \"again\" to try again.",
		PreviousAttestationFailed: "Your previous attestation failed. Send \"again\" to try again.",
		SeeAttestationUnit:        "Your attestation is posted: %[1]s",
		SavePrivateProfile: "Save your private profile, you will need it to reveal your email to apps:\n%[1]s",
		ReferralProgram: "Remember, we have a referral program: if you send BTC from your attested address to a new user " +
			"who is not attested yet, and they use those BTC to pay for a successful attestation of an email corresponding to:\n%[1]s\n" +
			"you receive a $%[2]s reward in BTC.",
		SelectLanguage:          "Please select your language:",
		BackToLanguageSelection: "Send \"select language\" to go back to language selection.",
		SomethingWentWrong:      "Something went wrong. Please try again later.",
	},
	"ru": {
		Greeting: "Здесь вы можете подтвердить свой email.\n\n" +
			"Email будет сохранён приватно в вашем кошельке, публично в блокчейн попадёт только доказательство подтверждения. " +
			"Сам факт подтверждения может дать доступ к сервисам или токенам, даже без раскрытия email. " +
			"Некоторые приложения могут попросить раскрыть подтверждённый email, вы сами решаете, что и кому раскрывать.\n\n" +
			"Вы также можете сделать подтверждённый email публичным.\n\n" +
			"Стоимость подтверждения %[1]s BTC. Оплата не возвращается, даже если подтверждение не удалось.\n\n" +
			"После оплаты вы получите письмо с кодом подтверждения. Введите код здесь, в чате.",
		WhitelistedReward: "После первого успешного подтверждения, если ваш email соответствует:\n%[1]s\n" +
			"вы получите вознаграждение $%[2]s в BTC.",
		InsertMyAddress: "Пришлите Bitcoin-адрес, который хотите подтвердить.\n" +
			"Оплачивайте только с этого адреса: платёж, тратящий монеты нескольких адресов, будет отклонён.",
		InsertMyEmail:                "Пришлите email, который хотите подтвердить.",
		GoingToAttestAddress:         "Спасибо, подтверждаем ваш адрес: %[1]s.",
		GoingToAttestEmail:           "Спасибо, подтверждаем ваш email: %[1]s.",
		WhitelistedEmailForReward:    "Ваш email подходит для получения вознаграждения.",
		NotWhitelistedEmailForReward: "Ваш email не подходит для получения вознаграждения.",
		PrivateOrPublic:              "Хранить email приватно в кошельке (рекомендуется) или опубликовать его?",
		PrivateChosen:                "Ваш email останется приватным и будет храниться в вашем кошельке.\nОтправьте \"public\", если передумали.",
		PublicChosen: "Ваш email %[1]s будет опубликован в открытой базе и будет доступен всем.\n" +
			"Отправьте \"private\", если передумали.",
		PleasePay:                "Оплатите подтверждение: отправьте %[2]s BTC на адрес %[1]s\n%[3]s",
		ReceivedLessThanExpected: "Получено %[1]s BTC, это меньше ожидаемых %[2]s BTC.",
		ReceivedWrongAsset:       "Платёж получен не в той валюте.",
		ReceivedFromMultiple:     "Платёж получен, но похоже, что он отправлен не с одного адреса.",
		ReceivedNotFromExpected:  "Платёж получен, но отправлен не с ожидаемого адреса %[1]s.",
		SwitchToSingleAddress: "Оплачивайте с одного адреса, " +
			"или перейдите на кошелёк с одним адресом и пришлите мне адрес перед оплатой.",
		ReceivedYourPayment:      "Получен ваш платёж %[1]s BTC, ожидаем подтверждения. Обычно это занимает около 30 минут.",
		PaymentIsConfirmed:       "Платёж подтверждён. На ваш email будет отправлено письмо с кодом.",
		VerificationEmailSubject: "Подтверждение email",
		VerificationEmailText:    "Ваш код подтверждения %[1]s\nВведите этот код в чате с \"%[2]s\"",
		VerificationEmailHTML: "<p>Ваш код подтверждения <h3>%[1]s</h3></p><p>Введите этот код в чате с \"%[2]s\"</p>" +
			"<p style=\"font-size: 13px; color: #727272; margin-top: 15px;\">-------<br>Пожалуйста, не отвечайте на это письмо.</p>",
		EmailWasSent: "Письмо отправлено на %[1]s. Введите здесь код из письма.\n" +
			"Если письмо не пришло, отправьте \"send email again\".",
		WrongVerificationCode:     "Неверный код подтверждения! Осталось попыток: %[1]d.",
		WrongVerificationCodeLast: "Неверный код подтверждения! Это ваша последняя попытка.",
		CodeConfirmed:             "Код подтверждён. Ваш email %[1]s в процессе подтверждения. Пожалуйста, подождите.",
		FirstTimeBonus: "Вы впервые прошли подтверждение и получите приветственный бонус " +
			"$%[1]s (%[2]s BTC) из фонда распределения.",
		ReferredUserBonus: "Приглашённый вами пользователь только что подтвердил email, вы получите вознаграждение " +
			"$%[1]s (%[2]s BTC) из фонда распределения.\nСпасибо, что привели нового пользователя!",
		AlreadyAttested:           "Вы уже подтверждены %[1]s UTC. Отправьте \"again\", чтобы пройти подтверждение снова.",
		CurrentAttestationFailed:  "Подтверждение не удалось. Отправьте \"again\", чтобы попробовать снова.",
		PreviousAttestationFailed: "Предыдущее подтверждение не удалось. Отправьте \"again\", чтобы попробовать снова.",
		SeeAttestationUnit:        "Подтверждение опубликовано: %[1]s",
		SavePrivateProfile: "Сохраните приватный профиль, он понадобится, чтобы раскрыть email приложениям:\n%[1]s",
		ReferralProgram: "Напоминаем о реферальной программе: если вы отправите BTC со своего подтверждённого адреса новому пользователю, " +
			"который ещё не подтверждён, и он оплатит ими успешное подтверждение email, соответствующего:\n%[1]s\n" +
			"вы получите вознаграждение $%[2]s в BTC.",
		SelectLanguage:          "Выберите язык:",
		BackToLanguageSelection: "Отправьте \"select language\", чтобы вернуться к выбору языка.",
		SomethingWentWrong:      "Произошла ошибка. Попробуйте позже.",
	},
}
