package main

import (
	"fmt"
	"log"

	"github.com/arenh/gomphos/account"
	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/federation"
	"github.com/arenh/gomphos/util"
	"github.com/arenh/gomphos/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))
	log.Printf("Starting %s", util.GetNameAndVersion())

	database, err := db.Open(util.ResolveFilePath("database.db"))
	if err != nil {
		log.Fatalln(err)
	}
	defer database.Close()

	var mailer account.Mailer
	if conf.Conf.SmtpHost != "" {
		mailer = account.NewSmtpMailer(conf)
	} else {
		mailer = account.LogMailer{}
	}

	accounts := account.NewService(database, conf, mailer)
	dispatcher := federation.NewDispatcher(conf)
	outbox := federation.NewOutbox(database, dispatcher)
	inbox := federation.NewInbox(database, conf)
	conns := federation.NewConnections(database, outbox, conf)
	posts := federation.NewPosts(database, outbox, conf)

	server := web.NewServer(conf, database, accounts, posts, conns, inbox, outbox)
	if err := server.Run(); err != nil {
		log.Fatalln(err)
	}
}
